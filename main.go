package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"takanome/internal/capture"
	"takanome/internal/config"
	"takanome/internal/registry"
	"takanome/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (YAML)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Takanome")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  takanome [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// 格納庫レジストリを読み込む
	reg, err := registry.NewFileRegistry(cfg.Registry.DataDir)
	if err != nil {
		log.Fatalf("格納庫レジストリの読み込みに失敗しました: %v", err)
	}

	// コンテキストを作成
	ctx := context.Background()

	// 撮影コアを組み立てる
	tracker := capture.NewTracker(cfg.Capture.RetentionGrace)
	tracker.Start(ctx)
	defer tracker.Stop()

	orchestrator := capture.NewOrchestrator(
		cfg.Capture,
		reg,
		tracker,
		capture.NewScriptCapturer(cfg.Capture.ScriptPath),
		capture.NewLightsController(),
		capture.NewCleanupManager(capture.NewSSHRunner()),
	)

	// サーバーを作成して起動
	srv := server.New(cfg, reg, tracker, orchestrator)

	log.Printf("Takanome サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
