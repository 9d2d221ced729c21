package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Matrix transport.
	viper.SetDefault("matrix.homeserver_url", "https://matrix.org")
	viper.SetDefault("matrix.user_id", "")
	viper.SetDefault("matrix.password", "")
	viper.SetDefault("matrix.device_name", "askaosus-bot")
	viper.SetDefault("matrix.store_path", "~/.askaosus")
	viper.SetDefault("matrix.sync_timeout", 30*time.Second)

	// Discourse forum search.
	viper.SetDefault("discourse.base_url", "https://discourse.aosus.org")
	viper.SetDefault("discourse.api_key", "")
	viper.SetDefault("discourse.username", "")

	// LLM backend.
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.max_tokens", 500)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.request_timeout", 90*time.Second)
	viper.SetDefault("llm.system_prompt_path", "")

	// Engagement behavior.
	viper.SetDefault("bot.mentions", []string{"@askaosus", "askaosus"})
	viper.SetDefault("bot.reply_behavior", "mention")
	viper.SetDefault("bot.thread_depth_limit", 10)
	viper.SetDefault("bot.rate_limit", 1*time.Second)
	viper.SetDefault("bot.rate_limit_per_room", false)
	viper.SetDefault("bot.max_search_results", 5)
	viper.SetDefault("bot.max_search_iterations", 3)
	viper.SetDefault("bot.registry_capacity", 5000)
	viper.SetDefault("bot.language", "ar")

	// Localized response catalog.
	viper.SetDefault("responses.path", "")

	// Sent-message persistence.
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.auto_migrate", true)
	viper.SetDefault("db.seed_limit", 1000)
}
