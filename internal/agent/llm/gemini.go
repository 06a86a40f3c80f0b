package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

// ClientConfig holds what is needed to reach the Gemini API.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// NewClient creates the shared Gemini client. One client serves every agent
// in the process.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// GeminiChatModel adapts the Gemini API to the ChatModel contract. It is
// constructed bound to one tool set; replies can only request calls against
// that set.
type GeminiChatModel struct {
	client *genai.Client
	cfg    model.GeminiConfig
	tools  []*genai.Tool
}

// NewGeminiChatModel binds a model name, sampling config and tool schemas
// into an invokable chat model.
func NewGeminiChatModel(client *genai.Client, cfg model.GeminiConfig, registry *model.Registry) *GeminiChatModel {
	m := &GeminiChatModel{client: client, cfg: cfg}
	if registry != nil {
		var decls []*genai.FunctionDeclaration
		for _, s := range registry.Schemas() {
			decl := &genai.FunctionDeclaration{
				Name:        s.Name,
				Description: s.Description,
			}
			if s.Parameters != nil {
				decl.ParametersJsonSchema = s.Parameters
			}
			decls = append(decls, decl)
		}
		if len(decls) > 0 {
			m.tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}
	return m
}

// Invoke sends the conversation to Gemini and maps the reply back into the
// internal message shape. Function-call parts become tool calls; the
// provider does not return call argument text, so Args arrive already
// structured and RawArgs stays empty.
func (m *GeminiChatModel) Invoke(ctx context.Context, messages []model.Message) (model.Message, error) {
	contents, system := toGeminiContents(messages)

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.cfg.Temperature),
		MaxOutputTokens: int32(m.cfg.MaxTokens),
		Tools:           m.tools,
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, genCfg)
	if err != nil {
		return model.Message{}, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.AIMessage("", nil), nil
	}

	reply := model.Message{Role: model.RoleAI, ID: model.NewID()}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			reply.Content += part.Text
		}
		if fc := part.FunctionCall; fc != nil {
			call := model.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
				Kind: model.ToolCallKind,
			}
			reply.ToolCalls = append(reply.ToolCalls, call)
		}
	}
	return reply, nil
}

// toGeminiContents maps internal roles onto the Gemini content shape.
// System text is pulled out for the system instruction; tool results become
// function-response parts correlated by tool name.
func toGeminiContents(messages []model.Message) ([]*genai.Content, string) {
	var system string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleHuman:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
			})
		case model.RoleAI:
			var parts []*genai.Part
			if msg.HasContent() {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Args
				if args == nil && call.RawArgs != "" {
					// Best effort; an unparseable call is replayed as text.
					if err := json.Unmarshal([]byte(call.RawArgs), &args); err != nil {
						parts = append(parts, genai.NewPartFromText(
							fmt.Sprintf("[tool call %s(%s)]", call.Name, call.RawArgs)))
						continue
					}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(call.Name, args))
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case model.RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(msg.Name, map[string]any{
					"result": msg.Content,
				})},
			})
		}
	}
	return contents, system
}

var _ model.ChatModel = (*GeminiChatModel)(nil)
