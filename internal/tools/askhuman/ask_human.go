package askhuman

import (
	"context"

	"mailcrew/internal/agent/ports"
	"mailcrew/internal/tools/shared"
)

// InputRequester asks the human a free-form question and blocks for the answer.
type InputRequester interface {
	RequestInput(ctx context.Context, question string) (string, error)
}

type askHuman struct {
	shared.BaseTool
	requester InputRequester
}

// New creates the ask_human tool. It lets the agent clarify ambiguous
// requests without attempting a concrete action.
func New(requester InputRequester) ports.ToolExecutor {
	return &askHuman{
		BaseTool: shared.NewBaseTool(
			ports.ToolDefinition{
				Name:        "ask_human",
				Description: "Ask the human a free-form question and wait for their reply. Use this to clarify ambiguous requests before touching billing objects.",
				Parameters: ports.ParameterSchema{
					Type: "object",
					Properties: map[string]ports.Property{
						"question": {
							Type:        "string",
							Description: "The question to send to the human.",
						},
					},
					Required: []string{"question"},
				},
			},
			ports.ToolMetadata{
				Name:     "ask_human",
				Version:  "1.0.0",
				Category: "human",
				ReadOnly: true,
			},
		),
		requester: requester,
	}
}

func (t *askHuman) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	question, errResult := shared.RequireStringArg(call.Arguments, call.ID, "question")
	if errResult != nil {
		return errResult, nil
	}

	answer, err := t.requester.RequestInput(ctx, question)
	if err != nil {
		return shared.ToolError(call.ID, "ask_human failed: %v", err)
	}
	return &ports.ToolResult{CallID: call.ID, Content: answer}, nil
}
