package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/cli"
	"github.com/hyperjump/kagami/internal/models"
)

var (
	searchK      int
	searchServer string
)

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <image>",
		Short: "Find the stored images most similar to a query image",
		Long: `Embed the query image and return the k nearest stored images, closest first,
with a similarity percentage for each.

Without --server the persisted store is loaded locally. With --server the
image is uploaded to a running "kagami server".

Examples:
  kagami search query.jpg
  kagami search --k 10 query.png
  kagami search --server http://localhost:8080 query.jpg
  kagami search -o json query.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().IntVarP(&searchK, "k", "k", 0, "number of results (defaults to search.default_k)")
	cmd.Flags().StringVar(&searchServer, "server", "", "query a running server at this base URL")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchK < 0 {
		return fmt.Errorf("k must not be negative, got %d", searchK)
	}
	path := args[0]

	var (
		response *models.SearchResponse
		err      error
	)
	if searchServer != "" {
		response, err = searchViaHTTP(cmd.Context(), searchServer, path, searchK)
	} else {
		response, err = searchLocal(cmd.Context(), path, searchK)
	}
	if err != nil {
		return err
	}
	if response.Query == "" {
		response.Query = path
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), response, format())
}

func searchLocal(ctx context.Context, path string, k int) (*models.SearchResponse, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	components, err := initializeComponents(cfg, logger, componentOptions{history: true})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	if err := components.Service.Load(cfg.Storage.StorePath); err != nil {
		return nil, fmt.Errorf("loading store %s: %w", cfg.Storage.StorePath, err)
	}
	response, err := components.Service.QueryFile(ctx, path, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return response, nil
}

func searchViaHTTP(ctx context.Context, serverURL, path string, k int) (*models.SearchResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query image: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if k > 0 {
		if err := mw.WriteField("k", strconv.Itoa(k)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	endpoint := strings.TrimRight(serverURL, "/") + "/api/v1/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}
