package mcp

import (
	"context"
	"fmt"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerAcceptBidTool creates a tool for accepting a bid
func (s *MCPServer) registerAcceptBidTool() {
	tool := mcp.NewTool("accept_bid",
		mcp.WithDescription("Accept a pending bid; the task moves in progress and other bids stay pending"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("bid", mcp.Required(), mcp.Description("Hex address of the bid to accept")),
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
		bidAddr, err := requireAddress(request, "bid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, bid, err := s.engine.AcceptBid(ctx, caller, taskAddr, bidAddr)
		metrics.RecordOperation("accept_bid", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to accept bid: %v", err)), nil
		}

		result := map[string]interface{}{
			"task": task,
			"bid":  bid,
		}
		return mcp.NewToolResultText(fmt.Sprintf("Bid accepted:\n\n%+v", result)), nil
	})
}

// registerRejectBidTool creates a tool for rejecting a bid
func (s *MCPServer) registerRejectBidTool() {
	tool := mcp.NewTool("reject_bid",
		mcp.WithDescription("Reject a pending bid"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("bid", mcp.Required(), mcp.Description("Hex address of the bid to reject")),
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
		bidAddr, err := requireAddress(request, "bid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bid, err := s.engine.RejectBid(ctx, caller, taskAddr, bidAddr)
		metrics.RecordOperation("reject_bid", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to reject bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid rejected:\n\n%+v", bid)), nil
	})
}

// registerWithdrawBidTool creates a tool for withdrawing a bid
func (s *MCPServer) registerWithdrawBidTool() {
	tool := mcp.NewTool("withdraw_bid",
		mcp.WithDescription("Withdraw your own pending bid; the bid record is reclaimed"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the bidder")),
		mcp.WithString("bid", mcp.Required(), mcp.Description("Hex address of the bid to withdraw")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		bidAddr, err := requireAddress(request, "bid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		err = s.engine.WithdrawBid(ctx, caller, bidAddr)
		metrics.RecordOperation("withdraw_bid", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to withdraw bid: %v", err)), nil
		}

		return mcp.NewToolResultText("Bid withdrawn and record reclaimed"), nil
	})
}

// registerFundEscrowTool creates a tool for funding the escrow
func (s *MCPServer) registerFundEscrowTool() {
	tool := mcp.NewTool("fund_escrow",
		mcp.WithDescription("Lock the accepted bid amount into the task's escrow vault"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("bid", mcp.Required(), mcp.Description("Hex address of the accepted bid")),
		mcp.WithString("client_holding", mcp.Required(), mcp.Description("Hex address of the client's token holding account")),
		mcp.WithString("mint", mcp.Required(), mcp.Description("Hex address of the token mint")),
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
		bidAddr, err := requireAddress(request, "bid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		clientHolding, err := requireAddress(request, "client_holding")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mint, err := requireAddress(request, "mint")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		escrow, err := s.engine.FundEscrow(ctx, caller, taskAddr, bidAddr, clientHolding, mint)
		metrics.RecordOperation("fund_escrow", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to fund escrow: %v", err)), nil
		}
		metrics.RecordEscrowFunded(escrow.TotalAmount)

		return mcp.NewToolResultText(fmt.Sprintf("Escrow funded with %d tokens:\n\n%+v", escrow.TotalAmount, escrow)), nil
	})
}

// registerGetEscrowTool creates a tool for reading a task's escrow
func (s *MCPServer) registerGetEscrowTool() {
	tool := mcp.NewTool("get_escrow",
		mcp.WithDescription("Get the escrow record for a task"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		escrow, err := s.engine.Escrow(ctx, taskAddr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get escrow: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Escrow details:\n\n%+v", escrow)), nil
	})
}

// registerGetFundingInfoTool creates a tool for funding instructions
func (s *MCPServer) registerGetFundingInfoTool() {
	tool := mcp.NewTool("get_funding_info",
		mcp.WithDescription("Get the payment URI and amount needed to fund a task's escrow"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskAddr, err := requireAddress(request, "task")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		info, err := s.fundingSvc.FundingInfo(ctx, taskAddr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get funding info: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Funding information:\n\n%+v", info)), nil
	})
}

// registerCompleteMilestoneTool creates a tool for marking a milestone done
func (s *MCPServer) registerCompleteMilestoneTool() {
	tool := mcp.NewTool("complete_milestone",
		mcp.WithDescription("Mark a milestone as delivered (accepted freelancer only)"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the freelancer")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithNumber("milestone_index", mcp.Required(), mcp.Description("Zero-based milestone index")),
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

		task, err := s.engine.CompleteMilestone(ctx, caller, taskAddr, int(toInt64(args["milestone_index"])))
		metrics.RecordOperation("complete_milestone", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to complete milestone: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Milestone marked complete:\n\n%+v", task)), nil
	})
}

// registerReleasePaymentTool creates a tool for paying a milestone
func (s *MCPServer) registerReleasePaymentTool() {
	tool := mcp.NewTool("release_payment",
		mcp.WithDescription("Release payment for a completed milestone from escrow to the freelancer"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("freelancer_holding", mcp.Required(), mcp.Description("Hex address of the freelancer's token holding account")),
		mcp.WithNumber("milestone_index", mcp.Required(), mcp.Description("Zero-based milestone index")),
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
		freelancerHolding, err := requireAddress(request, "freelancer_holding")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		index := int(toInt64(args["milestone_index"]))
		task, escrow, err := s.engine.ReleasePayment(ctx, caller, taskAddr, freelancerHolding, index)
		metrics.RecordOperation("release_payment", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to release payment: %v", err)), nil
		}
		if index >= 0 && index < len(task.Milestones) {
			metrics.RecordEscrowReleased(task.Milestones[index].Amount)
		}

		result := map[string]interface{}{
			"task":   task,
			"escrow": escrow,
		}
		return mcp.NewToolResultText(fmt.Sprintf("Payment released:\n\n%+v", result)), nil
	})
}

// registerRequestRefundTool creates a tool for refunding unreleased funds
func (s *MCPServer) registerRequestRefundTool() {
	tool := mcp.NewTool("request_refund",
		mcp.WithDescription("Refund unreleased escrow funds to the client (cancelled task, or expired with nothing released)"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the task owner")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the task")),
		mcp.WithString("client_holding", mcp.Required(), mcp.Description("Hex address of the client's token holding account")),
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
		clientHolding, err := requireAddress(request, "client_holding")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		escrow, refunded, err := s.engine.RequestRefund(ctx, caller, taskAddr, clientHolding)
		metrics.RecordOperation("request_refund", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to request refund: %v", err)), nil
		}
		metrics.RecordEscrowRefunded(refunded)

		return mcp.NewToolResultText(fmt.Sprintf("Refund of %d issued:\n\n%+v", refunded, escrow)), nil
	})
}

// registerInitializeProfileTool creates a tool for creating an agent profile
func (s *MCPServer) registerInitializeProfileTool() {
	tool := mcp.NewTool("initialize_profile",
		mcp.WithDescription("Create the caller's agent profile (one per address)"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the agent")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name (max 50 chars)")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caller, err := requireAddress(request, "caller")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		profile, err := s.engine.InitializeAgentProfile(ctx, caller, name)
		metrics.RecordOperation("initialize_agent_profile", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to initialize profile: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Profile created at %s:\n\n%+v", profile.Addr, profile)), nil
	})
}

// registerGetProfileTool creates a tool for reading an agent profile
func (s *MCPServer) registerGetProfileTool() {
	tool := mcp.NewTool("get_profile",
		mcp.WithDescription("Get the agent profile for an owner address"),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Hex address of the profile owner")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := requireAddress(request, "owner")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		profile, err := s.engine.Profile(ctx, owner)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get profile: %v", err)), nil
		}

		avg := 0.0
		if profile.RatingCount > 0 {
			avg = float64(profile.RatingSum) / float64(profile.RatingCount)
		}
		result := map[string]interface{}{
			"profile":        profile,
			"average_rating": avg,
		}
		return mcp.NewToolResultText(fmt.Sprintf("Profile details:\n\n%+v", result)), nil
	})
}

// registerSubmitReviewTool creates a tool for reviewing a counterparty
func (s *MCPServer) registerSubmitReviewTool() {
	tool := mcp.NewTool("submit_review",
		mcp.WithDescription("Review the other party of a completed task (rating 1-5)"),
		mcp.WithString("caller", mcp.Required(), mcp.Description("Hex address of the reviewer")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Hex address of the completed task")),
		mcp.WithString("reviewee", mcp.Required(), mcp.Description("Hex address of the party being reviewed")),
		mcp.WithNumber("rating", mcp.Required(), mcp.Description("Rating from 1 to 5")),
		mcp.WithString("review_text", mcp.Description("Review text (max 1000 chars)")),
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
		reviewee, err := requireAddress(request, "reviewee")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		review, err := s.engine.SubmitReview(ctx, caller, taskAddr, core.SubmitReviewParams{
			Reviewee:   reviewee,
			Rating:     uint8(toInt64(args["rating"])),
			ReviewText: toString(args["review_text"]),
		})
		metrics.RecordOperation("submit_review", err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit review: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Review submitted:\n\n%+v", review)), nil
	})
}
