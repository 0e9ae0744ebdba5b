package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"videoChat/config"
	"videoChat/processors"
	"videoChat/server"
	"videoChat/storage"
	"videoChat/utils"
)

func main() {
	root := &cobra.Command{
		Use:   "videochat",
		Short: "Ask questions about the content of a video",
	}
	root.AddCommand(serveCmd(), chatCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !cfg.HasValidAPI() {
				config.PrintConfigInstructions()
				log.Println("Warning: no API configuration, running with mock transcription and the memory index")
			}
			if err := os.MkdirAll(cfg.OutputFolder, 0755); err != nil {
				log.Fatalf("failed to create data dir: %v", err)
			}

			srv := server.New(cfg, server.DefaultFactory())
			mux := http.NewServeMux()
			srv.Routes(mux)

			addr := ":" + port
			if v := os.Getenv("PORT"); v != "" {
				addr = ":" + v
			}
			log.Printf("Server listening on %s", addr)
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "listen port")
	return cmd
}

func chatCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ingest a video and answer questions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.OutputFolder, 0755); err != nil {
				return err
			}

			reader := bufio.NewScanner(os.Stdin)
			for url == "" {
				fmt.Print("Please input video url:")
				if !reader.Scan() {
					return reader.Err()
				}
				url = strings.TrimSpace(reader.Text())
				if url == "exit" {
					return nil
				}
			}

			id := utils.NewID()
			pipeline := processors.NewPipeline(processors.YtDlpFetcher{}, processors.PickTranscriber(), cfg.VideoFPS)
			store := storage.NewStore(cfg, id)
			sess, err := processors.NewSession(id, cfg.OutputFolder, pipeline, store, processors.NewGPT4o(cfg))
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer sess.Close(ctx)

			if err := sess.Ingest(ctx, url); err != nil {
				return err
			}

			for {
				fmt.Print("User: ")
				if !reader.Scan() {
					return reader.Err()
				}
				msg := strings.TrimSpace(reader.Text())
				if msg == "" {
					continue
				}
				if msg == "exit" {
					return nil
				}
				answer, err := sess.Ask(ctx, msg)
				if err != nil {
					log.Printf("Warning: answer failed (%v), you can retry the question", err)
					continue
				}
				fmt.Printf("Assistant: %s\n", answer)
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "video url to ingest")
	return cmd
}
