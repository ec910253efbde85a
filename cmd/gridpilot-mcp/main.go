// Package main provides the gridpilot-mcp binary — MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	gpmcp "github.com/gridpilot/gridpilot/pkg/mcp"
)

var version = "dev"

func main() {
	s := gpmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
