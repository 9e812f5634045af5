package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/internal/sanitize"
	"github.com/aretw0/parley/pkg/conversation"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// VignettesURI is the resource listing every vignette.
const VignettesURI = "parley://vignettes"

// Simulator defines what the MCP server needs from the Parley core.
type Simulator interface {
	Open(ctx context.Context, req parley.OpenRequest) (*conversation.Engine, error)
	Vignette(ctx context.Context, id string) (*domain.Vignette, error)
	Vignettes(ctx context.Context) ([]string, error)
}

// TurnResponse provides a unified turn structure across tools.
type TurnResponse struct {
	Response      string                `json:"response" jsonschema_description:"What the persona said; empty when the conversation ended"`
	CurrentPhase  string                `json:"current_phase" jsonschema_description:"Phase the conversation is in after the turn"`
	Mood          domain.EmotionalState `json:"mood" jsonschema_description:"Persona mood after the turn"`
	ObjectivesMet []string              `json:"objectives_met,omitempty" jsonschema_description:"Objectives completed by this turn"`
	Transition    *domain.BranchRecord  `json:"transition,omitempty" jsonschema_description:"Branch taken this turn"`
	Ended         bool                  `json:"ended" jsonschema_description:"Indicates the conversation is over"`
	Error         string                `json:"error,omitempty"`
	Retryable     bool                  `json:"retryable,omitempty" jsonschema_description:"The reply failed; call retry_reply with session_state"`
	SessionState  *domain.SessionState  `json:"session_state" jsonschema_description:"Pass back as JSON on the next call"`
}

// VignetteInfo describes one vignette.
type VignetteInfo struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	Persona          string              `json:"persona"`
	DifficultyLevels []domain.Difficulty `json:"difficulty_levels"`
}

// VignetteList is the result of list_vignettes.
type VignetteList struct {
	Vignettes []VignetteInfo `json:"vignettes"`
}

// StartArgs are the arguments of start_session.
type StartArgs struct {
	VignetteID string `json:"vignette_id"`
	Difficulty string `json:"difficulty,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Model      string `json:"model,omitempty"`
	Opening    bool   `json:"opening,omitempty"`
}

// MessageArgs are the arguments of send_message and retry_reply.
type MessageArgs struct {
	SessionState string `json:"session_state"`
	Message      string `json:"message,omitempty"`
	Model        string `json:"model,omitempty"`
}

// GraphArgs are the arguments of get_graph.
type GraphArgs struct {
	VignetteID   string `json:"vignette_id"`
	SessionState string `json:"session_state,omitempty"`
}

// Server wraps Parley and exposes it as an MCP Server.
type Server struct {
	sim       Simulator
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(sim Simulator) *Server {
	s := &Server{
		sim:       sim,
		mcpServer: server.NewMCPServer("parley-mcp", parley.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_vignettes",
		mcp.WithDescription("List the conversation scenarios available for rehearsal."),
		mcp.WithOutputSchema[VignetteList](),
	), mcp.NewStructuredToolHandler(s.handleListVignettes))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a roleplay on a vignette. Returns the session state to pass to send_message."),
		mcp.WithString("vignette_id", mcp.Required(), mcp.Description("Vignette to play")),
		mcp.WithString("difficulty", mcp.Description("beginner, intermediate or advanced")),
		mcp.WithString("user_id", mcp.Description("Trainee identifier")),
		mcp.WithString("model", mcp.Description("Model override, e.g. gpt-4o-mini or ollama:llama3")),
		mcp.WithBoolean("opening", mcp.Description("Let the persona speak first")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Say something to the persona as the trainee."),
		mcp.WithString("session_state", mcp.Required(), mcp.Description("JSON session state from the previous call")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Trainee utterance")),
		mcp.WithString("model", mcp.Description("Model override")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("retry_reply",
		mcp.WithDescription("Regenerate the persona reply after a failed send_message."),
		mcp.WithString("session_state", mcp.Required(), mcp.Description("JSON session state returned with the failure")),
		mcp.WithString("model", mcp.Description("Model override")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleRetry))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the phase graph of a vignette as a Mermaid diagram."),
		mcp.WithString("vignette_id", mcp.Required(), mcp.Description("Vignette to draw")),
		mcp.WithString("session_state", mcp.Description("JSON session state to highlight progress")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GraphArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		text, err := s.graph(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

func (s *Server) handleListVignettes(ctx context.Context, _ mcp.CallToolRequest, _ map[string]any) (VignetteList, error) {
	ids, err := s.sim.Vignettes(ctx)
	if err != nil {
		return VignetteList{}, fmt.Errorf("list failed: %w", err)
	}
	list := VignetteList{Vignettes: make([]VignetteInfo, 0, len(ids))}
	for _, id := range ids {
		v, err := s.sim.Vignette(ctx, id)
		if err != nil {
			return VignetteList{}, err
		}
		list.Vignettes = append(list.Vignettes, VignetteInfo{
			ID:               v.ID,
			Title:            v.Title,
			Description:      v.Description,
			Persona:          v.Persona.Name,
			DifficultyLevels: v.Levels(),
		})
	}
	return list, nil
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (TurnResponse, error) {
	eng, err := s.sim.Open(ctx, parley.OpenRequest{
		VignetteID: args.VignetteID,
		Difficulty: domain.Difficulty(args.Difficulty),
		UserID:     args.UserID,
		Model:      args.Model,
	})
	if err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	if !args.Opening {
		state := eng.SessionState()
		return TurnResponse{
			CurrentPhase: state.CurrentPhase.CurrentPhaseID,
			Mood:         state.EmotionalState,
			SessionState: state,
		}, nil
	}
	return turnResponse(eng.Opening(ctx))
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args MessageArgs) (TurnResponse, error) {
	text, err := sanitize.Utterance(args.Message, 0)
	if err != nil {
		slog.Warn("MCP send_message: Input rejected", "error", err, "size", len(args.Message))
		return TurnResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	eng, err := s.resume(ctx, args)
	if err != nil {
		return TurnResponse{}, err
	}
	return turnResponse(eng.ProcessUserMessage(ctx, text))
}

func (s *Server) handleRetry(ctx context.Context, _ mcp.CallToolRequest, args MessageArgs) (TurnResponse, error) {
	eng, err := s.resume(ctx, args)
	if err != nil {
		return TurnResponse{}, err
	}
	return turnResponse(eng.RetryReply(ctx))
}

func (s *Server) resume(ctx context.Context, args MessageArgs) (*conversation.Engine, error) {
	state, err := parseState(args.SessionState)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: session_state is required", domain.ErrInvalidResumeState)
	}
	eng, err := s.sim.Open(ctx, parley.OpenRequest{PriorState: state, Model: args.Model})
	if err != nil {
		return nil, fmt.Errorf("resume failed: %w", err)
	}
	return eng, nil
}

func parseState(raw string) (*domain.SessionState, error) {
	if raw == "" {
		return nil, nil
	}
	var state domain.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidResumeState, err)
	}
	return &state, nil
}

// turnResponse converts an engine result. Generation failures are answered
// with the committed state instead of a tool error so hosts can retry.
func turnResponse(res *conversation.TurnResult, err error) (TurnResponse, error) {
	var genErr *domain.GenerationError
	if err != nil && (res == nil || !errors.As(err, &genErr)) {
		return TurnResponse{}, err
	}
	out := TurnResponse{
		Response:      res.Response,
		CurrentPhase:  res.CurrentPhase,
		Mood:          res.EmotionalState,
		ObjectivesMet: res.ObjectivesMet,
		Transition:    res.Transition,
		Ended:         res.Ended,
		SessionState:  res.State,
	}
	if genErr != nil {
		out.Error = genErr.Error()
		out.Retryable = true
	}
	return out, nil
}

func (s *Server) graph(ctx context.Context, args GraphArgs) (string, error) {
	v, err := s.sim.Vignette(ctx, args.VignetteID)
	if err != nil {
		return "", err
	}
	state, err := parseState(args.SessionState)
	if err != nil {
		return "", err
	}
	return graph.GenerateMermaid(v, graph.OverlayFrom(state)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(VignettesURI, "Available vignettes",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.handleListVignettes(ctx, mcp.CallToolRequest{}, nil)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(list)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      VignettesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
