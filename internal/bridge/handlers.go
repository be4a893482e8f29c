// ABOUTME: MCP tool handlers that resolve the caller's Toolset and invoke its methods
// ABOUTME: Tool failures come back as MCP error results so the runtime can react

package bridge

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/larder-gateway/internal/meals"
)

const (
	plotDisplayedText = "Plot has been displayed to the user."
	refreshSentText   = "The client has been asked to refresh its data."
	noConnectionText  = "No active client connection for this token."
)

func (s *Server) handleDisplayPlot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ts := s.toolsetFor(ctx)
	if ts == nil {
		return mcp.NewToolResultError(noConnectionText), nil
	}

	html, _ := request.GetArguments()["html"].(string)
	if html == "" {
		return mcp.NewToolResultError("html is required"), nil
	}

	if err := ts.DisplayPlot(ctx, html); err != nil {
		s.logger.Warn("display_plot failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("could not display plot: %v", err)), nil
	}
	return mcp.NewToolResultText(plotDisplayedText), nil
}

func (s *Server) handleRefreshData(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ts := s.toolsetFor(ctx)
	if ts == nil {
		return mcp.NewToolResultError(noConnectionText), nil
	}

	if err := ts.RefreshData(ctx); err != nil {
		s.logger.Warn("refresh_data failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("could not refresh data: %v", err)), nil
	}
	return mcp.NewToolResultText(refreshSentText), nil
}

func (s *Server) handleLogMeal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ts := s.toolsetFor(ctx)
	if ts == nil {
		return mcp.NewToolResultError(noConnectionText), nil
	}

	args := request.GetArguments()
	calories, ok := args["calories"].(float64)
	if !ok {
		return mcp.NewToolResultError("calories must be a number"), nil
	}

	meal := &meals.Meal{
		Calories: int(calories),
		MealName: optionalString(args, "meal_name"),
		MealType: optionalString(args, "meal_type"),
		Notes:    optionalString(args, "notes"),
	}
	if name := optionalString(args, "user_name"); name != nil {
		meal.UserName = *name
	}

	stored, err := ts.LogMeal(ctx, meal)
	if err != nil {
		s.logger.Warn("log_meal failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("could not log meal: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged %d calories for %s.", stored.Calories, stored.UserName)), nil
}

func optionalString(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}
