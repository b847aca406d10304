// Package main is a small CLI for querying a running retrieval-pipeline
// server, useful for relevance spot checks without wiring up a client.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	nResults  int
	keyword   string
	noRerank  bool
	overFetch int
)

var rootCmd = &cobra.Command{
	Use:           "searchctl",
	Short:         "Query a retrieval-pipeline server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a search and print the ranked passages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var answerCmd = &cobra.Command{
	Use:   "answer <query>",
	Short: "Stream a grounded answer for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnswer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("PIPELINE_URL", "http://localhost:9020"), "pipeline server base URL")
	rootCmd.PersistentFlags().IntVarP(&nResults, "n", "n", 5, "number of results")
	rootCmd.PersistentFlags().StringVarP(&keyword, "keyword", "k", "", "keyword filter applied in the vector store")
	rootCmd.PersistentFlags().BoolVar(&noRerank, "no-rerank", false, "skip the rerank stage")
	rootCmd.PersistentFlags().IntVar(&overFetch, "over-fetch", 0, "override the candidate pool size")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(answerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requestBody(query string) ([]byte, error) {
	rerank := !noRerank
	return json.Marshal(map[string]any{
		"query":          query,
		"n_results":      nResults,
		"keyword":        keyword,
		"rerank_enabled": rerank,
		"over_fetch":     overFetch,
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	body, err := requestBody(args[0])
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(serverURL+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result struct {
		RetrievalID string `json:"retrieval_id"`
		Reranked    bool   `json:"reranked"`
		Results     []struct {
			ID         string  `json:"id"`
			Content    string  `json:"content"`
			SourceRef  string  `json:"source_ref"`
			Similarity float64 `json:"similarity"`
			Relevance  float64 `json:"relevance"`
			Fused      float64 `json:"fused"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("retrieval %s (reranked=%v, %d results)\n", result.RetrievalID, result.Reranked, len(result.Results))
	for i, r := range result.Results {
		fmt.Printf("%2d. [%s] fused=%.4f sim=%.4f rel=%.4f %s\n", i+1, r.ID, r.Fused, r.Similarity, r.Relevance, r.SourceRef)
		fmt.Printf("    %s\n", firstLine(r.Content))
	}
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	body, err := requestBody(args[0])
	if err != nil {
		return err
	}

	// No client timeout: answers stream until the generator finishes.
	resp, err := http.Post(serverURL+"/v1/answer/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "delta":
				var delta string
				if err := json.Unmarshal([]byte(data), &delta); err == nil {
					fmt.Print(delta)
				}
			case "error":
				fmt.Println()
				return fmt.Errorf("stream failed: %s", data)
			case "done":
				fmt.Println()
				return nil
			}
		}
	}
	return scanner.Err()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
