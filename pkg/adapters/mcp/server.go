package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatusURI is the resource exposing the local participant's status.
const StatusURI = "citylink://status"

// StatusResponse is the structured result of every tool.
type StatusResponse struct {
	State    session.State  `json:"state" jsonschema_description:"The local participant's session state"`
	Label    string         `json:"label" jsonschema_description:"Human readable connection status"`
	Incoming []domain.Offer `json:"incoming" jsonschema_description:"Pending offers addressed to the local participant"`
	Outgoing []domain.Offer `json:"outgoing" jsonschema_description:"Offers sent by the local participant"`
}

// Client is the session surface the MCP tools drive. *session.Client implements it.
type Client interface {
	Host(ctx context.Context, code string) (string, error)
	Join(ctx context.Context, code string) error
	Disconnect(ctx context.Context) error
	Resync(ctx context.Context)
	SendOffer(ctx context.Context, d domain.Draft) (*domain.Offer, error)
	AcceptOffer(ctx context.Context, offerID string) error
	RejectOffer(ctx context.Context, offerID string) error
	Snapshot() session.State
	StatusLabel() string
	IncomingOffers() []domain.Offer
	OutgoingOffers() []domain.Offer
}

// Server exposes a session client as an MCP server, so an agent can trade on
// behalf of the local participant.
type Server struct {
	client    Client
	onChange  func()
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithOnChange runs fn after every successful mutating tool call.
func WithOnChange(fn func()) Option {
	return func(s *Server) {
		s.onChange = fn
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(client Client, version string, opts ...Option) *Server {
	s := &Server{
		client:    client,
		mcpServer: server.NewMCPServer("citylink-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Show the trading session status and its offers."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleStatus))

	s.mcpServer.AddTool(mcp.NewTool("host_session",
		mcp.WithDescription("Host a trading session. Returns the status; share state.code with the partner."),
		mcp.WithString("code", mcp.Description("Session code to host (optional, random when omitted)")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleHost))

	s.mcpServer.AddTool(mcp.NewTool("join_session",
		mcp.WithDescription("Join a trading session hosted by someone else."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Session code shared by the host")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleJoin))

	s.mcpServer.AddTool(mcp.NewTool("leave_session",
		mcp.WithDescription("Leave the current trading session."),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleLeave))

	s.mcpServer.AddTool(mcp.NewTool("send_offer",
		mcp.WithDescription("Offer the partner a trade: give one resource in exchange for another."),
		mcp.WithString("give_resource", mcp.Required(), mcp.Description("Resource to give, e.g. wood")),
		mcp.WithNumber("give_amount", mcp.Required(), mcp.Description("Amount to give")),
		mcp.WithString("receive_resource", mcp.Required(), mcp.Description("Resource to receive")),
		mcp.WithNumber("receive_amount", mcp.Required(), mcp.Description("Amount to receive")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendOffer))

	s.mcpServer.AddTool(mcp.NewTool("accept_offer",
		mcp.WithDescription("Accept a pending incoming offer."),
		mcp.WithString("offer_id", mcp.Required(), mcp.Description("Offer ID")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleAccept))

	s.mcpServer.AddTool(mcp.NewTool("reject_offer",
		mcp.WithDescription("Reject a pending incoming offer."),
		mcp.WithString("offer_id", mcp.Required(), mcp.Description("Offer ID")),
		mcp.WithOutputSchema[StatusResponse](),
	), mcp.NewStructuredToolHandler(s.handleReject))
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	s.client.Resync(ctx)
	return s.status(), nil
}

func (s *Server) handleHost(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	code, _ := args["code"].(string)
	if _, err := s.client.Host(ctx, code); err != nil {
		return StatusResponse{}, fmt.Errorf("host failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) handleJoin(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	code, _ := args["code"].(string)
	if err := s.client.Join(ctx, code); err != nil {
		return StatusResponse{}, fmt.Errorf("join failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) handleLeave(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	if err := s.client.Disconnect(ctx); err != nil {
		return StatusResponse{}, fmt.Errorf("leave failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) handleSendOffer(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	d := domain.Draft{}
	d.GiveRes, _ = args["give_resource"].(string)
	d.GiveAmount, _ = args["give_amount"].(float64)
	d.ReceiveRes, _ = args["receive_resource"].(string)
	d.ReceiveAmount, _ = args["receive_amount"].(float64)

	if _, err := s.client.SendOffer(ctx, d); err != nil {
		return StatusResponse{}, fmt.Errorf("send offer failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) handleAccept(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	id, _ := args["offer_id"].(string)
	if err := s.client.AcceptOffer(ctx, id); err != nil {
		return StatusResponse{}, fmt.Errorf("accept failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) handleReject(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatusResponse, error) {
	id, _ := args["offer_id"].(string)
	if err := s.client.RejectOffer(ctx, id); err != nil {
		return StatusResponse{}, fmt.Errorf("reject failed: %w", err)
	}
	return s.changed(), nil
}

func (s *Server) changed() StatusResponse {
	if s.onChange != nil {
		s.onChange()
	}
	return s.status()
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		State:    s.client.Snapshot(),
		Label:    s.client.StatusLabel(),
		Incoming: s.client.IncomingOffers(),
		Outgoing: s.client.OutgoingOffers(),
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StatusURI, "Trading session status",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s.client.Resync(ctx)
		data, err := json.Marshal(s.status())
		if err != nil {
			return nil, fmt.Errorf("failed to encode status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StatusURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
