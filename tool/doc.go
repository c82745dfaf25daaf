// Package tool defines the pure-metadata tool registry that exposes the MES
// ontology operations to an external AI agent runtime.
//
// A Tool pairs a name, description, and JSON parameter/result schemas with a
// handler function. The Registry stores tools by name, rejects duplicates at
// registration time, and can emit handler-free Descriptors for transmission
// to an agent runtime. Invocation transport, retries, and conversation
// management are explicitly out of scope: the runtime that receives the
// descriptors decides how to call the handlers.
//
// RegisterOntologyTools wires the standard MES tool set (entity upserts,
// batch transitions, consumption links, deviations, genealogy, RCA context)
// against a mes.Extension.
package tool
