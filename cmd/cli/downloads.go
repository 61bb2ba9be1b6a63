package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/yourusername/zimshelf/internal/domain"
)

type downloadView struct {
	domain.DownloadModel
	State string `json:"state"`
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Download a book archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		book := domain.Book{URL: args[0]}
		book.ID, _ = cmd.Flags().GetString("id")
		book.Title, _ = cmd.Flags().GetString("title")
		book.Name, _ = cmd.Flags().GetString("name")
		if book.ID == "" {
			book.ID = domain.FileNameFromURL(args[0])
		}

		var download downloadView
		err := call(http.MethodPost, "/api/v1/downloads", map[string]interface{}{
			"url":  args[0],
			"book": book,
		}, http.StatusCreated, &download)
		exitOnError(err)

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %d\n", download.DownloadID)
		fmt.Printf("State: %s\n", download.State)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/downloads"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var downloads []downloadView
		exitOnError(call(http.MethodGet, path, nil, http.StatusOK, &downloads))
		printDownloads(downloads)
	},
}

func printDownloads(downloads []downloadView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tSTATE\tPROGRESS\tSIZE\tETA")
	for _, d := range downloads {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\t%s\n",
			d.DownloadID,
			truncate(bookName(d.Book), 32),
			d.State,
			d.Progress,
			sizeProgress(d.BytesDownloaded, d.TotalSize),
			formatEta(d.EtaMillis))
	}
	w.Flush()
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var d downloadView
		exitOnError(call(http.MethodGet, "/api/v1/downloads/"+args[0], nil, http.StatusOK, &d))

		fmt.Printf("Download Details:\n")
		fmt.Printf("  ID:       %d\n", d.DownloadID)
		fmt.Printf("  Book:     %s\n", bookName(d.Book))
		fmt.Printf("  URL:      %s\n", d.Book.URL)
		fmt.Printf("  Status:   %s\n", d.Status)
		fmt.Printf("  State:    %s\n", d.State)
		fmt.Printf("  Progress: %d%% (%s)\n", d.Progress, sizeProgress(d.BytesDownloaded, d.TotalSize))
		fmt.Printf("  ETA:      %s\n", formatEta(d.EtaMillis))
		fmt.Printf("  Created:  %s\n", humanize.Time(d.CreatedAt))
		if d.File != "" {
			fmt.Printf("  File:     %s\n", d.File)
		}
	},
}

func downloadAction(use, action, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a download",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ensureServer()
			exitOnError(call(http.MethodPost, "/api/v1/downloads/"+args[0]+"/"+action, nil, http.StatusOK, nil))
			fmt.Println(done)
		},
	}
}

var (
	pauseCmd  = downloadAction("pause", "pause", "Download paused")
	resumeCmd = downloadAction("resume", "resume", "Download resumed")
	cancelCmd = downloadAction("cancel", "cancel", "Download cancelled successfully")
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats domain.LibraryStats
		exitOnError(call(http.MethodGet, "/api/v1/downloads/stats", nil, http.StatusOK, &stats))

		fmt.Println("Library Statistics:")
		fmt.Printf("  Books:       %d\n", stats.Books)
		fmt.Printf("  Downloads:   %d\n", stats.Downloads)
		fmt.Printf("  Downloading: %d\n", stats.Downloading)
		fmt.Printf("  Paused:      %d\n", stats.Paused)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow download progress until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/v1/downloads/watch"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		exitOnError(err)
		defer conn.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		go func() {
			<-interrupt
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}()

		for {
			var downloads []downloadView
			if err := conn.ReadJSON(&downloads); err != nil {
				return
			}
			for i := range downloads {
				d := &downloads[i]
				d.State = d.ReadableState()
			}
			fmt.Printf("\n%s\n", time.Now().Format("15:04:05"))
			printDownloads(downloads)
		}
	},
}

func bookName(b domain.Book) string {
	switch {
	case b.Title != "":
		return b.Title
	case b.Name != "":
		return b.Name
	default:
		return b.ID
	}
}

func sizeProgress(downloaded, total int64) string {
	if total <= 0 {
		return "-"
	}
	if downloaded < 0 {
		downloaded = 0
	}
	return humanize.Bytes(uint64(downloaded)) + " / " + humanize.Bytes(uint64(total))
}

func formatEta(millis int64) string {
	if millis < 0 {
		return "-"
	}
	return (time.Duration(millis) * time.Millisecond).Round(time.Second).String()
}

func init() {
	addCmd.Flags().String("id", "", "Catalog book id (defaults to the file name)")
	addCmd.Flags().StringP("title", "t", "", "Book title")
	addCmd.Flags().StringP("name", "n", "", "Book name")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
}
