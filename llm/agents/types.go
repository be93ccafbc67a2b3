// Package agents runs a single tool-using agent against an LLM provider.
//
// An Agent is built from a Descriptor (name, role, instructions, tools) plus
// the session's shared memory store. Run streams the model output, executes
// the tool calls the model asks for, and records the finished run so later
// turns of the session see it as history. Coordination of several agents
// lives in the team package.
package agents
