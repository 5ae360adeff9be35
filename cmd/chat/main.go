package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kb-assistant-be/internal/config"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/internal/repository/implementation"
	"kb-assistant-be/internal/repository/memory"
	"kb-assistant-be/pkg/answer"
	"kb-assistant-be/pkg/chat/followup"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/orchestrator"
	"kb-assistant-be/pkg/database"
	"kb-assistant-be/pkg/docstore"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const help = `Commands:
  /docs                 list documents (* = selected)
  /toggle <id>          toggle a document
  /all | /none          select all / clear selection
  /upload <path>        upload a file and select it
  /rm <id>              delete a document
  /history [query]      list saved conversations
  /open <n>             open conversation n from the last /history
  /forget <n>           delete conversation n from the last /history
  /new                  start a new conversation
  /edit <i> <text>      rewrite user message i
  /del <i>              delete message i
  /show                 print the transcript
  /quit`

// printer streams chunks to the terminal as they arrive.
type printer struct {
	streamed bool
}

func (p *printer) OnChunk(_ int, chunk string) {
	if !p.streamed {
		color.New(color.FgGreen).Print("assistant> ")
		p.streamed = true
	}
	fmt.Print(chunk)
}

func (p *printer) OnSnapshot(orchestrator.View) {}

type options struct {
	token   string
	user    string
	persist bool
	stream  bool
}

func main() {
	cfg := config.Load()
	opts := options{}

	rootCmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with your knowledge base from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, opts)
		},
	}
	rootCmd.Flags().StringVar(&opts.token, "token", os.Getenv("KB_ACCESS_TOKEN"), "bearer token for the document and answer services")
	rootCmd.Flags().StringVar(&opts.user, "user", "", "user id (defaults to the token's user_id claim)")
	rootCmd.Flags().BoolVar(&opts.persist, "persist", false, "save conversations to DB_CONNECTION_STRING instead of memory")
	rootCmd.Flags().BoolVar(&opts.stream, "stream", cfg.Upstream.Streaming, "stream answers")

	if err := rootCmd.Execute(); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options) error {
	if opts.token == "" {
		return fmt.Errorf("an access token is required (--token or KB_ACCESS_TOKEN)")
	}
	userID, err := resolveUser(opts.user, opts.token)
	if err != nil {
		return fmt.Errorf("cannot determine user: %w", err)
	}

	log := logger.NewIsolatedLogger(filepath.Join(filepath.Dir(cfg.App.LogFilePath), "chat-cli.log"))
	defer log.Sync()

	repo, err := newRepository(opts.persist, cfg)
	if err != nil {
		return fmt.Errorf("cannot open conversation store: %w", err)
	}

	out := &printer{}
	orch := orchestrator.New(
		&orchestrator.BearerCredentials{UserID: userID, Token: opts.token},
		orchestrator.AnswerService(answer.NewClient(cfg.Upstream.AnswerBaseURL, cfg.Upstream.ChatPath, log)),
		docstore.NewClient(cfg.Upstream.DocumentBaseURL, log),
		history.NewSyncer(repo, nil, log),
		followup.NewStatic(),
		orchestrator.Options{
			Streaming:     opts.stream,
			AnswerTimeout: cfg.Upstream.AnswerTimeout,
			Location:      cfg.App.Location(),
		},
		log,
	)
	orch.SetListener(out)

	ctx := context.Background()
	if err := orch.Init(ctx); err != nil {
		color.Yellow("Could not load documents: %v", err)
	}

	color.Cyan("📚 Knowledge base chat. Type /help for commands.")
	printDocs(orch)

	var lastHistory []*entity.Conversation
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		color.New(color.FgCyan).Print("\nyou> ")
		if !scanner.Scan() {
			flush(orch)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			ask(orch, out, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/help":
			fmt.Println(help)
		case "/quit", "/exit":
			flush(orch)
			return nil
		case "/docs":
			if err := orch.RefreshDocuments(ctx); err != nil {
				color.Red("%v", err)
			}
			printDocs(orch)
		case "/toggle":
			report(orch.ToggleDocument(entity.DocumentID(arg)))
			printDocs(orch)
		case "/all":
			orch.SelectAllDocuments()
			printDocs(orch)
		case "/none":
			orch.ClearSelection()
			printDocs(orch)
		case "/upload":
			upload(ctx, orch, arg)
		case "/rm":
			report(orch.DeleteDocument(ctx, entity.DocumentID(arg)))
			printDocs(orch)
		case "/history":
			lastHistory = printHistory(ctx, orch, arg)
		case "/open":
			if conv := pick(lastHistory, arg); conv != nil {
				if report(orch.OpenConversation(ctx, conv.Id)) {
					printTranscript(orch)
				}
			}
		case "/forget":
			if conv := pick(lastHistory, arg); conv != nil {
				report(orch.DeleteConversation(ctx, conv.Id))
			}
		case "/new":
			orch.NewConversation()
			color.Green("Started a new conversation")
		case "/edit":
			idx, text, _ := strings.Cut(arg, " ")
			if i, ok := parseIndex(idx); ok {
				report(orch.EditMessage(i, text))
			}
		case "/del":
			if i, ok := parseIndex(arg); ok {
				report(orch.DeleteMessage(i))
			}
		case "/show":
			printTranscript(orch)
		default:
			color.Yellow("Unknown command %s", cmd)
		}
	}
}

// ask sends one question; Ctrl+C cancels the pending answer.
func ask(orch *orchestrator.Orchestrator, out *printer, question string) {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	done := make(chan error, 1)
	out.streamed = false
	go func() { done <- orch.SendMessage(context.Background(), question) }()

	select {
	case err := <-done:
		if !report(err) {
			return
		}
	case <-sigCtx.Done():
		orch.Cancel()
		<-done
	}

	if out.streamed {
		fmt.Println()
	}
	view := orch.Snapshot()
	if n := len(view.Messages); n > 0 {
		last := view.Messages[n-1]
		if !out.streamed || view.LastError != "" {
			color.New(color.FgGreen).Print("assistant> ")
			fmt.Println(last.Content)
		}
	}
	for _, s := range view.FollowUps {
		color.New(color.Faint).Printf("  ↳ %s\n", s)
	}
}

// flush waits for conversation saves still queued before the process exits.
func flush(orch *orchestrator.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Flush(ctx); err != nil {
		color.Yellow("Some changes may not have been saved: %v", err)
	}
}

func upload(ctx context.Context, orch *orchestrator.Orchestrator, path string) {
	f, err := os.Open(path)
	if err != nil {
		color.Red("%v", err)
		return
	}
	defer f.Close()

	doc, err := orch.UploadDocument(ctx, filepath.Base(path), f)
	if report(err) {
		color.Green("Uploaded %s (%s)", doc.Filename, doc.Id)
		printDocs(orch)
	}
}

func printDocs(orch *orchestrator.Orchestrator) {
	view := orch.Snapshot()
	selected := make(map[entity.DocumentID]bool, len(view.SelectedDocs))
	for _, id := range view.SelectedDocs {
		selected[id] = true
	}
	if len(view.Documents) == 0 {
		color.Yellow("No documents uploaded")
		return
	}
	for _, d := range view.Documents {
		mark := " "
		if selected[d.Id] {
			mark = "*"
		}
		fmt.Printf(" %s %-24s %s\n", mark, d.Id, d.Filename)
	}
}

func printHistory(ctx context.Context, orch *orchestrator.Orchestrator, query string) []*entity.Conversation {
	groups, err := orch.History(ctx, query)
	if !report(err) {
		return nil
	}
	var flat []*entity.Conversation
	for _, g := range groups {
		color.Cyan(g.Label)
		for _, c := range g.Conversations {
			flat = append(flat, c)
			fmt.Printf("  [%d] %s  (%s)\n", len(flat), c.Title, c.UpdatedAt.Format(time.Kitchen))
		}
	}
	if len(flat) == 0 {
		color.Yellow("No conversations")
	}
	return flat
}

func printTranscript(orch *orchestrator.Orchestrator) {
	for i, m := range orch.Snapshot().Messages {
		if m.Role == entity.RoleUser {
			color.New(color.FgCyan).Printf("[%d] you> ", i)
		} else {
			color.New(color.FgGreen).Printf("[%d] assistant> ", i)
		}
		fmt.Println(m.Content)
	}
}

func pick(list []*entity.Conversation, arg string) *entity.Conversation {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		color.Yellow("Run /history and pass a number from the list")
		return nil
	}
	return list[n-1]
}

func parseIndex(arg string) (int, bool) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		color.Yellow("Expected a message index")
		return 0, false
	}
	return i, true
}

func report(err error) bool {
	if err != nil {
		color.Red("%v", err)
		return false
	}
	return true
}

func resolveUser(flagValue, token string) (uuid.UUID, error) {
	if flagValue != "" {
		return uuid.Parse(flagValue)
	}
	// the services verify the token; the claim only scopes local history
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	raw, _ := claims["user_id"].(string)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("token has no user_id claim, pass --user")
	}
	return uuid.Parse(raw)
}

func newRepository(persist bool, cfg *config.Config) (contract.ConversationRepository, error) {
	if !persist {
		return memory.NewConversationRepository(), nil
	}
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
	if err != nil {
		return nil, err
	}
	return implementation.NewConversationRepository(db), nil
}
