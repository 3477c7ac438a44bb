// Package schema holds the JSON-shaped tree a template is rendered against.
//
// A schema has two top-level sections. "inherit" carries engine settings such
// as inherit.locale.current and the translation tables under
// inherit.locale.trans. "data" carries the values templates read, including
// data.CONTEXT, which FromRequest fills from an incoming HTTP request.
//
// Paths are dot-separated ("data.site.theme"); integer segments index lists.
package schema
