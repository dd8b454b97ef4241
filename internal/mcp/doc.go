// Package mcp implements the Model Context Protocol surface of the gateway.
//
// # Overview
//
// Messages arrive as JSON-RPC 2.0 requests posted to a session. The Handler
// decodes them, answers the protocol methods itself and hands tools/call to
// the Dispatcher, which runs the deep research pipeline.
//
// # Methods
//
//   - initialize - handshake, capability advertisement
//   - ping - liveness
//   - tools/list - the registered capabilities
//   - tools/call - run a capability
//   - prompts/list, resources/list - always empty
//   - logging/setLevel - adjust the process log level
//
// Anything else is answered with -32601 (method not found). Notifications
// never produce a response.
//
// # Capabilities
//
// The capability set is closed. deep_research is the only member:
//
//	{
//	  "name": "deep_research",
//	  "description": "Run deep research with web search",
//	  "inputSchema": {
//	    "type": "object",
//	    "properties": {"query": {"type": "string"}},
//	    "required": ["query"]
//	  }
//	}
//
// A successful call returns three text blocks: the answer, then
// "plan_run_id: <id>", then "research_run_id: <id>".
//
// # Errors
//
//   - unknown capability: -32602, "unknown capability: <name>"
//   - malformed arguments: -32602, "invalid params"
//   - deadline exceeded: -32603, "tool execution timed out"
//   - any other pipeline failure: -32603 with the failure text as data
package mcp
