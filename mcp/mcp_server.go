package mcp

import (
	"context"
	"fmt"
	"strconv"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/services"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the mcp-go server with our business logic
type MCPServer struct {
	mcpServer  *server.MCPServer
	engine     *core.Engine
	fundingSvc *services.FundingService
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(engine *core.Engine, fundingSvc *services.FundingService) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Task Marketplace MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer:  mcpServer,
		engine:     engine,
		fundingSvc: fundingSvc,
	}

	// Register all tools
	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	// Task tools
	s.registerPostTaskTool()
	s.registerGetTaskTool()
	s.registerUpdateTaskTool()
	s.registerCancelTaskTool()

	// Bid tools
	s.registerSubmitBidTool()
	s.registerGetBidTool()
	s.registerAcceptBidTool()
	s.registerRejectBidTool()
	s.registerWithdrawBidTool()

	// Escrow tools
	s.registerFundEscrowTool()
	s.registerGetEscrowTool()
	s.registerGetFundingInfoTool()
	s.registerCompleteMilestoneTool()
	s.registerReleasePaymentTool()
	s.registerRequestRefundTool()

	// Reputation tools
	s.registerInitializeProfileTool()
	s.registerGetProfileTool()
	s.registerSubmitReviewTool()
}

// registerPostTaskTool creates a tool for posting a new task
func (s *MCPServer) registerPostTaskTool() {
	tool := mcp.NewTool("post_task",
		mcp.WithDescription("Post a new task with milestones; milestone amounts must sum to the budget"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title (max 100 chars)")),
		mcp.WithString("description", mcp.Description("Task description (max 5000 chars)")),
		mcp.WithNumber("budget", mcp.Required(), mcp.Description("Total budget in token base units")),
		mcp.WithArray("milestones", mcp.Required(), mcp.Description("Milestones: objects with description and amount")),
		mcp.WithNumber("deadline", mcp.Required(), mcp.Description("Unix timestamp the task must finish by")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		title, err := request.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var specs []core.MilestoneSpec
		if rawList, ok := args["milestones"].([]interface{}); ok {
			for _, raw := range rawList {
				if m, ok := raw.(map[string]interface{}); ok {
					specs = append(specs, core.MilestoneSpec{
						Description: toString(m["description"]),
						Amount:      toUint64(m["amount"]),
					})
				}
			}
		}

		task, err := s.engine.PostTask(ctx, caller, core.PostTaskParams{
			Title:       title,
			Description: toString(args["description"]),
			Budget:      toUint64(args["budget"]),
			Milestones:  specs,
			Deadline:    toInt64(args["deadline"]),
		})
		metrics.RecordOperation("post_task", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to post task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task posted at %s:\n\n%+v", task.Addr, task)), nil
	})
}

// registerGetTaskTool creates a tool for reading a task
func (s *MCPServer) registerGetTaskTool() {
	tool := mcp.NewTool("get_task",
		mcp.WithDescription("Get details of a specific task"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.engine.Task(ctx, taskAddr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task details:\n\n%+v", task)), nil
	})
}

// registerUpdateTaskTool creates a tool for updating an open task
func (s *MCPServer) registerUpdateTaskTool() {
	tool := mcp.NewTool("update_task",
		mcp.WithDescription("Update description, budget or deadline of an open task"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithNumber("budget", mcp.Description("New budget")),
		mcp.WithNumber("deadline", mcp.Description("New deadline (unix timestamp)")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var params core.UpdateTaskParams
		if v, ok := args["description"].(string); ok {
			params.Description = &v
		}
		if _, ok := args["budget"]; ok {
			v := toUint64(args["budget"])
			params.Budget = &v
		}
		if _, ok := args["deadline"]; ok {
			v := toInt64(args["deadline"])
			params.Deadline = &v
		}

		task, err := s.engine.UpdateTask(ctx, caller, taskAddr, params)
		metrics.RecordOperation("update_task", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to update task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task updated:\n\n%+v", task)), nil
	})
}

// registerCancelTaskTool creates a tool for cancelling a task
func (s *MCPServer) registerCancelTaskTool() {
	tool := mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel a task that has no funded escrow"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.engine.CancelTask(ctx, caller, taskAddr)
		metrics.RecordOperation("cancel_task", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task cancelled:\n\n%+v", task)), nil
	})
}

// registerSubmitBidTool creates a tool for bidding on a task
func (s *MCPServer) registerSubmitBidTool() {
	tool := mcp.NewTool("submit_bid",
		mcp.WithDescription("Submit a bid on an open task"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the bidder")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Bid amount in token base units")),
		mcp.WithNumber("timeline", mcp.Required(), mcp.Description("Seconds needed to complete the work")),
		mcp.WithString("proposal", mcp.Description("Proposal text (max 2000 chars)")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bid, err := s.engine.SubmitBid(ctx, caller, taskAddr, core.SubmitBidParams{
			Amount:   toUint64(args["amount"]),
			Timeline: toInt64(args["timeline"]),
			Proposal: toString(args["proposal"]),
		})
		metrics.RecordOperation("submit_bid", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid submitted at %s:\n\n%+v", bid.Addr, bid)), nil
	})
}

// registerGetBidTool creates a tool for reading a bid
func (s *MCPServer) registerGetBidTool() {
	tool := mcp.NewTool("get_bid",
		mcp.WithDescription("Get details of a specific bid"),
		mcp.WithString("bid", mcp.Required(), mcp.Description("Hex address of the bid")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidAddr, err := requireAddress(request, "bid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bid, err := s.engine.Bid(ctx, bidAddr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid details:\n\n%+v", bid)), nil
	})
}

// requireAddress extracts and parses a required hex address argument.
func requireAddress(request mcp.CallToolRequest, name string) (core.Address, error) {
	raw, err := request.RequireString(name)
	if err != nil {
		return core.Address{}, err
	}
	addr, err := core.ParseAddress(raw)
	if err != nil {
		return core.Address{}, fmt.Errorf("invalid %s address: %w", name, err)
	}
	return addr, nil
}

// Helper function to convert interface{} to string
func toString(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// Helper function to convert interface{} to int64
func toInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// Helper function to convert interface{} to uint64
func toUint64(val interface{}) uint64 {
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		if v >= 0 {
			return uint64(v)
		}
	case int:
		if v >= 0 {
			return uint64(v)
		}
	case float64:
		if v >= 0 {
			return uint64(v)
		}
	case string:
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return 0
}
