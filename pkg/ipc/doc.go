/*
Package ipc carries render requests to a template engine running in another
process.

Every connection carries one request record and one response record. A
request sends the schema (JSON or msgpack) as content 1 and the template path
or source as content 2. The response sends a JSON result object as content 1
and the rendered page as content 2:

	{"status_code":"200","status_text":"OK","status_param":"","has_error":false}

Client implements templating.Renderer, so a templating.Template handle works
the same against a local Manager or a remote engine. Server exposes any
Renderer over TCP.
*/
package ipc
