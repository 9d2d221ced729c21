package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aosus/askaosus/db"
	"github.com/aosus/askaosus/engage"
	"github.com/aosus/askaosus/internal/botrun"
	"github.com/aosus/askaosus/internal/discourse"
	"github.com/aosus/askaosus/internal/logutil"
	"github.com/aosus/askaosus/internal/matrix"
	"github.com/aosus/askaosus/internal/responses"
	"github.com/aosus/askaosus/internal/statepaths"
	"github.com/aosus/askaosus/internal/statestore"
	"github.com/aosus/askaosus/llm"
	"github.com/aosus/askaosus/providers/openai"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const syncErrorBackoff = 5 * time.Second

type syncState struct {
	NextBatch string `json:"next_batch"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Matrix bot",
		RunE:  runBot,
	}

	cmd.Flags().String("matrix-homeserver-url", "", "Matrix homeserver base URL.")
	cmd.Flags().String("matrix-user-id", "", "Bot Matrix user id, e.g. @askaosus:aosus.org.")
	cmd.Flags().String("reply-behavior", "", "How to treat replies to bot messages: ignore|mention|watch.")
	cmd.Flags().Duration("sync-timeout", 0, "Matrix /sync long-poll timeout.")
	cmd.Flags().Int("thread-depth-limit", 0, "Max reply hops when reconstructing a thread.")
	cmd.Flags().Bool("rate-limit-per-room", false, "Debounce per room instead of globally.")
	cmd.Flags().String("debug-search", "", "Run a forum search for the given query and exit.")

	return cmd
}

func runBot(cmd *cobra.Command, args []string) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searcher, err := discourse.New(discourse.Options{
		BaseURL:     viper.GetString("discourse.base_url"),
		APIKey:      viper.GetString("discourse.api_key"),
		APIUsername: viper.GetString("discourse.username"),
		MaxResults:  viper.GetInt("bot.max_search_results"),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if query := strings.TrimSpace(flagOrViperString(cmd, "debug-search", "")); query != "" {
		return debugSearch(ctx, cmd, searcher, query)
	}

	catalog := responses.Default()
	if path := strings.TrimSpace(viper.GetString("responses.path")); path != "" {
		catalog, err = responses.Load(statepaths.ExpandHomePath(path))
		if err != nil {
			return err
		}
	}

	apiKey := viper.GetString("llm.api_key")
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("missing llm.api_key (set via %s_LLM_API_KEY)", envPrefix)
	}
	llmClient, err := openai.New(viper.GetString("llm.provider"), viper.GetString("llm.base_url"), apiKey)
	if err != nil {
		return err
	}
	if d := viper.GetDuration("llm.request_timeout"); d > 0 {
		llmClient.HTTP.Timeout = d
	}

	systemPrompt, err := llm.LoadSystemPrompt(statepaths.ExpandHomePath(viper.GetString("llm.system_prompt_path")))
	if err != nil {
		return err
	}

	answerer, err := llm.NewAnswerer(llm.AnswererOptions{
		Client:       llmClient,
		Searcher:     searcher,
		Catalog:      catalog,
		Model:        viper.GetString("llm.model"),
		MaxTokens:    viper.GetInt("llm.max_tokens"),
		Temperature:  viper.GetFloat64("llm.temperature"),
		MaxSearches:  viper.GetInt("bot.max_search_iterations"),
		Language:     viper.GetString("bot.language"),
		SystemPrompt: systemPrompt,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	dbCfg := db.DefaultConfig()
	dbCfg.DSN = viper.GetString("db.dsn")
	dbCfg.AutoMigrate = viper.GetBool("db.auto_migrate")
	gdb, err := db.Open(dbCfg)
	if err != nil {
		return err
	}
	sentStore, err := db.NewSentStore(gdb)
	if err != nil {
		return err
	}

	registry := engage.NewSentRegistry(viper.GetInt("bot.registry_capacity"))
	seeded, err := sentStore.RecentEventIDs(ctx, viper.GetInt("db.seed_limit"))
	if err != nil {
		logger.Warn("sent_store_seed_failed", "error", err.Error())
	}
	for _, id := range seeded {
		registry.Add(id)
	}
	logger.Info("registry_seeded", "count", len(seeded))

	userID := strings.TrimSpace(flagOrViperString(cmd, "matrix-user-id", "matrix.user_id"))
	if userID == "" {
		return fmt.Errorf("missing matrix.user_id (set via --matrix-user-id or %s_MATRIX_USER_ID)", envPrefix)
	}
	client, err := matrix.New(matrix.Options{
		HomeserverURL: flagOrViperString(cmd, "matrix-homeserver-url", "matrix.homeserver_url"),
	})
	if err != nil {
		return err
	}

	store, err := statestore.New(statepaths.StoreDir())
	if err != nil {
		return err
	}

	policy, err := engage.ParsePolicy(flagOrViperString(cmd, "reply-behavior", "bot.reply_behavior"))
	if err != nil {
		return err
	}
	matcher, err := engage.NewMatcher(viper.GetStringSlice("bot.mentions"))
	if err != nil {
		return err
	}

	// The lock covers login and the sync loop: two bot processes sharing a
	// store would clobber each other's session and batch token.
	return store.WithLock(ctx, func() error {
		if err := restoreOrLogin(ctx, client, store, userID, logger); err != nil {
			return err
		}

		resolver := &engage.Resolver{
			Fetcher: engage.FetcherFunc(func(ctx context.Context, roomID, eventID string) (engage.Message, error) {
				ev, err := client.RoomEvent(ctx, roomID, eventID)
				if err != nil {
					return engage.Message{}, err
				}
				return ev.AsMessage(), nil
			}),
			Logger: logger,
		}
		engine := &engage.Engine{
			BotID:      client.UserID(),
			Policy:     policy,
			Matcher:    matcher,
			Resolver:   resolver,
			Registry:   registry,
			DepthLimit: flagOrViperInt(cmd, "thread-depth-limit", "bot.thread_depth_limit"),
			Logger:     logger,
		}
		gate := engage.NewGate(engage.GateOptions{
			MinInterval: viper.GetDuration("bot.rate_limit"),
			PerRoom:     flagOrViperBool(cmd, "rate-limit-per-room", "bot.rate_limit_per_room"),
		})

		handler, err := botrun.New(botrun.Options{
			BotID:     client.UserID(),
			Transport: client,
			Engine:    engine,
			Answerer:  answerer,
			Gate:      gate,
			Registry:  registry,
			Store:     sentStore,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		syncTimeout := flagOrViperDuration(cmd, "sync-timeout", "matrix.sync_timeout")
		return syncLoop(ctx, client, store, gate, handler, syncTimeout, logger)
	})
}

// syncLoop performs the catch-up sync, arms the gate and then long-polls the
// homeserver until the context is canceled. The batch token survives
// restarts via the state store; sync failures back off and retry.
func syncLoop(ctx context.Context, client *matrix.Client, store *statestore.Store, gate *engage.Gate, handler *botrun.Handler, syncTimeout time.Duration, logger *slog.Logger) error {
	var state syncState
	if _, err := store.ReadJSON(statepaths.SyncFilename, &state); err != nil {
		logger.Warn("sync_state_read_failed", "error", err.Error())
	}

	// Catch-up sync: its backlog is never handled, it only advances the
	// batch token past everything that happened while the bot was down.
	initial, err := client.Sync(ctx, state.NextBatch, 0)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	since := initial.NextBatch
	state.NextBatch = since
	if err := store.WriteJSON(statepaths.SyncFilename, state); err != nil {
		logger.Warn("sync_state_write_failed", "error", err.Error())
	}

	gate.Arm()
	logger.Info("bot_started", "user_id", client.UserID())

	if syncTimeout <= 0 {
		syncTimeout = 30 * time.Second
	}

	for {
		resp, err := client.Sync(ctx, since, syncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("bot_stopped")
				return nil
			}
			logger.Warn("sync_error", "error", err.Error())
			if err := sleepCtx(ctx, syncErrorBackoff); err != nil {
				logger.Info("bot_stopped")
				return nil
			}
			continue
		}

		for roomID, room := range resp.Rooms.Join {
			for _, ev := range room.Timeline.Events {
				if ev.RoomID == "" {
					ev.RoomID = roomID
				}
				handler.HandleEvent(ctx, ev.AsMessage())
			}
		}

		since = resp.NextBatch
		state.NextBatch = since
		if err := store.WriteJSON(statepaths.SyncFilename, state); err != nil {
			logger.Warn("sync_state_write_failed", "error", err.Error())
		}

		if ctx.Err() != nil {
			logger.Info("bot_stopped")
			return nil
		}
	}
}

func debugSearch(ctx context.Context, cmd *cobra.Command, searcher *discourse.Searcher, query string) error {
	posts, err := searcher.Search(ctx, query)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(posts) == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, p := range posts {
		_, _ = fmt.Fprintf(out, "%d. %s\n   %s\n", i+1, p.Title, p.URL)
		if excerpt := strings.TrimSpace(p.Excerpt); excerpt != "" {
			_, _ = fmt.Fprintf(out, "   %s\n", excerpt)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
