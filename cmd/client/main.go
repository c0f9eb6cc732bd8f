// Command client is a thin HTTP client mirroring the node's RPC surface
// one-to-one (spec §6.4): one subcommand per service method, exit code 0
// on success, 1 on transport failure, 2 on a server-reported error.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	exitOK        = 0
	exitTransport = 1
	exitServer    = 2
)

var (
	addr   string
	client = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	root := &cobra.Command{Use: "client", Short: "stip cluster client"}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:7001", "node RPC address")

	root.AddCommand(nodesCmd(), albumsCmd(), imagesCmd(), tasksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitTransport)
	}
}

func nodesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "nodes"}
	cmd.AddCommand(&cobra.Command{
		Use: "list",
		Run: func(cmd *cobra.Command, args []string) { doRequest(http.MethodGet, "/v1/nodes", nil) },
	})
	return cmd
}

func albumsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "albums"}

	var id, geocode string
	var dhtKeyLength int
	create := &cobra.Command{
		Use: "create",
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]any{"id": id, "geocode": geocode, "dht_key_length": dhtKeyLength})
			doRequest(http.MethodPost, "/v1/albums", body)
		},
	}
	create.Flags().StringVar(&id, "id", "", "album id")
	create.Flags().StringVar(&geocode, "geocode", "geohash", "geocode scheme (geohash|quadtile)")
	create.Flags().IntVar(&dhtKeyLength, "dht-key-length", 0, "DHT key length")

	list := &cobra.Command{
		Use: "list",
		Run: func(cmd *cobra.Command, args []string) { doRequest(http.MethodGet, "/v1/albums", nil) },
	}

	cmd.AddCommand(create, list)
	return cmd
}

func imagesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "images"}

	var album, format, glob string
	var precision, workers int
	store := &cobra.Command{
		Use: "store",
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]any{"format": format, "glob": glob, "precision": precision, "thread_count": workers})
			doRequest(http.MethodPost, "/v1/albums/"+album+"/images", body)
		},
	}
	store.Flags().StringVar(&album, "album", "", "album id")
	store.Flags().StringVar(&format, "format", "generic", "decoder format name")
	store.Flags().StringVar(&glob, "glob", "", "artifact glob pattern")
	store.Flags().IntVar(&precision, "precision", 5, "geocode precision in characters")
	store.Flags().IntVar(&workers, "thread-count", 4, "concurrent record processors")

	var listAlbum string
	list := &cobra.Command{
		Use: "list",
		Run: func(cmd *cobra.Command, args []string) {
			doRequestStream(http.MethodGet, "/v1/albums/"+listAlbum+"/images")
		},
	}
	list.Flags().StringVar(&listAlbum, "album", "", "album id")

	var searchAlbum string
	search := &cobra.Command{
		Use: "search",
		Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodGet, "/v1/albums/"+searchAlbum+"/images/search", nil)
		},
	}
	search.Flags().StringVar(&searchAlbum, "album", "", "album id")

	var bcAlbum, bcType, bcPlatform, bcSource, bcTarget string
	var bcPrecision int
	var bcWindowSeconds int64
	broadcast := &cobra.Command{
		Use: "broadcast",
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]any{
				"type": bcType, "precision": bcPrecision,
				"source_platform": bcPlatform, "target_platform": bcTarget,
				"platform": bcSource, "window_seconds": bcWindowSeconds,
			})
			doRequest(http.MethodPost, "/v1/albums/"+bcAlbum+"/broadcast", body)
		},
	}
	broadcast.Flags().StringVar(&bcAlbum, "album", "", "album id")
	broadcast.Flags().StringVar(&bcType, "type", "", "fill|split|coalesce")
	broadcast.Flags().IntVar(&bcPrecision, "precision", 5, "geocode precision (split)")
	broadcast.Flags().StringVar(&bcPlatform, "source-platform", "", "source platform (coalesce)")
	broadcast.Flags().StringVar(&bcTarget, "target-platform", "", "target platform (coalesce)")
	broadcast.Flags().StringVar(&bcSource, "platform", "", "platform (fill)")
	broadcast.Flags().Int64Var(&bcWindowSeconds, "window-seconds", 0, "time window in seconds (fill|coalesce)")

	cmd.AddCommand(store, list, search, broadcast)
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tasks"}

	cmd.AddCommand(&cobra.Command{
		Use: "list",
		Run: func(cmd *cobra.Command, args []string) { doRequest(http.MethodGet, "/v1/tasks", nil) },
	})

	var getID uint64
	get := &cobra.Command{
		Use: "get",
		Run: func(cmd *cobra.Command, args []string) { doRequest(http.MethodGet, fmt.Sprintf("/v1/tasks/%d", getID), nil) },
	}
	get.Flags().Uint64Var(&getID, "id", 0, "task id")

	var bcID uint64
	broadcast := &cobra.Command{
		Use: "broadcast",
		Run: func(cmd *cobra.Command, args []string) {
			body, _ := json.Marshal(map[string]uint64{"task_id": bcID})
			doRequest(http.MethodPost, "/v1/tasks/broadcast", body)
		},
	}
	broadcast.Flags().Uint64Var(&bcID, "id", 0, "cluster-wide task id")

	cmd.AddCommand(get, broadcast)
	return cmd
}

func doRequest(method, path string, body []byte) {
	resp, err := send(method, path, body)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitTransport)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(exitServer)
	}
	fmt.Println(string(out))
	os.Exit(exitOK)
}

// doRequestStream prints an NDJSON response line by line as it arrives.
func doRequestStream(method, path string) {
	resp, err := send(method, path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		out, _ := io.ReadAll(resp.Body)
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(exitServer)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	os.Exit(exitOK)
}

func send(method, path string, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("http://%s%s", addr, path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}
