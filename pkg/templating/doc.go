/*
Package templating renders .ntpl templates against a schema and reports the
outcome as content plus a status triple (code, text, param).

Callers hold a Template handle, which binds a path to a schema. Rendering never
fails for conditions a template raises on purpose: a template can stop with
{: exit 404 :} or {: redirect 302 "/login" :}, and those come back through
StatusCode and StatusParam. Only a render that cannot happen at all, such as a
missing template file or a missing schema, returns an *EngineError.

The Renderer interface has two implementations: Manager, the local engine in
this package, and the IPC client in package ipc. Manager uses html/template with
{: and :} as delimiters. The schema tree is the template data, so a template
reads {: .data.hello :}. Files matching the snippet pattern (by default
*-snippets.ntpl) in the template's directory are parsed with it, and the
snippets they define can be called by name with {: snippet "name" :}.

Output is escaped contextually. Values under data.CONTEXT come from the client
and must never be marked safe without passing through sanitize.
*/
package templating
