package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/initializ/cip"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool and resource registered
// against engine. Reloading the engine is visible to subsequent calls.
func New(engine *cip.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"cip",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	selectTool := NewSelectTool(engine)
	s.AddTool(selectTool.Definition(), selectTool.Handle)

	policyTool := NewResolvePolicyTool(engine)
	s.AddTool(policyTool.Definition(), policyTool.Handle)

	guardTool := NewGuardTool(engine)
	s.AddTool(guardTool.Definition(), guardTool.Handle)

	res := NewResources(engine)
	s.AddResource(res.ScaffoldsResource(), res.HandleScaffolds)
	s.AddResource(res.PresetsResource(), res.HandlePresets)
	s.AddResource(res.HealthResource(), res.HandleHealth)

	return s
}

// Serve runs s over stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Use cip_select_scaffold before answering a domain request to get the reasoning
scaffold, the effective temperature and the output rules. Pass any user constraints
("be brief", "skip disclaimers") as the policy argument. Run cip_check_guardrails on
the draft answer and return its sanitized text.`
