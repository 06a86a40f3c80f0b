package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ranops-core/server/internal/agent/conversations"
	"github.com/ranops-core/server/internal/agent/events"
	"github.com/ranops-core/server/internal/agent/graph"
	"github.com/ranops-core/server/internal/agent/graph/engine"
	"github.com/ranops-core/server/internal/agent/llm"
	"github.com/ranops-core/server/internal/agent/model"
	"github.com/ranops-core/server/internal/agent/prompts"
	"github.com/ranops-core/server/internal/agent/repo"
	"github.com/ranops-core/server/internal/agent/supervisor"
	"github.com/ranops-core/server/internal/agent/tokenizer"
	"github.com/ranops-core/server/internal/core"
	"github.com/ranops-core/server/internal/tools"
	logx "github.com/ranops-core/server/pkg/logger"
	pkgredis "github.com/ranops-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Redis       pkgredis.Config
	ThreadTTL   string `envconfig:"THREAD_TTL" default:"72h"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Gemini     model.GeminiConfig
	Agent      model.AgentConfig
	Memory     model.MemoryConfig
	Supervisor model.SupervisorConfig
}

func main() {
	fmt.Println("Starting RAN operations assistant...")
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	ttl, err := time.ParseDuration(envCfg.ThreadTTL)
	if err != nil {
		log.Fatalf("Invalid THREAD_TTL '%s': %v", envCfg.ThreadTTL, err)
	}
	checkpoints := repo.NewRedisCheckpointProvider(rdb, ttl)

	client, err := llm.NewClient(ctx, llm.ClientConfig{APIKey: envCfg.APIKey, BaseURL: envCfg.BaseURL})
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}

	tok := tokenizer.NewTiktoken()
	summarizer := llm.NewChatSummarizer(llm.NewGeminiChatModel(client, envCfg.Gemini, nil))

	newWorker := func(name, systemPrompt string, workerTools ...model.Tool) *graph.Agent {
		registry := model.NewRegistry(workerTools...)
		agent, err := graph.NewAgent(graph.Config{
			Name:         name,
			SystemPrompt: systemPrompt,
			Model:        llm.NewGeminiChatModel(client, envCfg.Gemini, registry),
			Registry:     registry,
			Memory:       conversations.NewManager(envCfg.Memory, tok, summarizer),
			Checkpoints:  checkpoints,
			Agent:        envCfg.Agent,
		})
		if err != nil {
			log.Fatalf("Failed to build %s: %v", name, err)
		}
		return agent
	}

	deviceInfo := newWorker("device_info_agent", prompts.DeviceInfoSystem, tools.NewFetchDeviceDataTool())
	ranConfig := newWorker("ran_config_agent", prompts.RANConfigSystem, tools.NewQueryRANConfigTool())
	ranPM := newWorker("ran_pm_agent", prompts.RANPMSystem, tools.NewAnalyzePMMetricsTool())
	configChange := newWorker("config_change_agent", prompts.ConfigChangeSystem, tools.NewApplyConfigChangeTool())

	sup, err := supervisor.New(supervisor.Config{
		SystemPrompt: prompts.SupervisorSystem,
		ModelFactory: func(registry *model.Registry) model.ChatModel {
			return llm.NewGeminiChatModel(client, envCfg.Gemini, registry)
		},
		Memory:       conversations.NewManager(envCfg.Memory, tok, summarizer),
		Checkpoints:  checkpoints,
		Supervisor:   envCfg.Supervisor,
		Workers: []supervisor.Worker{
			deviceInfo, ranConfig, ranPM, configChange,
		},
	})
	if err != nil {
		log.Fatalf("Failed to build supervisor: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Device inventory lookup",
			query:       "What hardware is running at site STH-CENTRAL-07?",
		},
		{
			description: "Parameter meaning and current value",
			query:       "What does a3Offset do on gnb-0142 and what is it set to?",
		},
		{
			description: "Performance degradation analysis",
			query:       "Users at NRT-RIVERSIDE-12 are complaining about drops, can you check enb-2210?",
		},
	}

	threadID := "ops-session-" + model.NewID()[:8]
	sink := events.NewLogSink()

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)
		fmt.Println("Processing...")

		state, err := sup.Turn(ctx, test.query, engine.RunConfig{
			ThreadID: threadID,
			Events:   sink,
		})
		if err != nil {
			log.Fatalf("Turn %d failed: %v", i+1, err)
		}

		if idx := model.LastAI(state.Messages); idx >= 0 {
			fmt.Printf("Response %d: %s\n", i+1, state.Messages[idx].Content)
		}
		fmt.Println("------------------------------------------------")

		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("All turns completed")
}
