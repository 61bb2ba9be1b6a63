package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/zimshelf/internal/domain"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "List books on disk",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var books []domain.BookItem
		exitOnError(call(http.MethodGet, "/api/v1/books", nil, http.StatusOK, &books))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tFILE\tSIZE\tCOMPLETE")
		for _, b := range books {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n",
				b.DatabaseID,
				truncate(bookName(b.Book), 32),
				truncate(b.File, 48),
				humanize.Bytes(uint64(b.SizeOnDisk)),
				!b.HasPart)
		}
		w.Flush()
	},
}

var deleteBookCmd = &cobra.Command{
	Use:   "delete-book [id]",
	Short: "Delete a book and its archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		keepFile, _ := cmd.Flags().GetBool("keep-file")

		path := "/api/v1/books/" + args[0]
		if keepFile {
			path += "?keep_file=true"
		}
		exitOnError(call(http.MethodDelete, path, nil, http.StatusOK, nil))
		fmt.Println("Book deleted")
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Register every archive found in a directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		body := map[string]string{}
		if len(args) == 1 {
			body["dir"] = args[0]
		}

		var result struct {
			Dir   string              `json:"dir"`
			Count int                 `json:"count"`
			Books []domain.BookOnDisk `json:"books"`
		}
		exitOnError(call(http.MethodPost, "/api/v1/books/scan", body, http.StatusOK, &result))

		fmt.Printf("Scanned %s: %d archive(s)\n", result.Dir, result.Count)
		for _, b := range result.Books {
			fmt.Printf("  %s\n", b.File)
		}
	},
}

var chunksCmd = &cobra.Command{
	Use:   "chunks [url] [size]",
	Short: "Show how a download would be split into chunks",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		size, err := humanize.ParseBytes(args[1])
		if err != nil {
			exitOnError(fmt.Errorf("invalid size %q: %w", args[1], err))
		}

		var plan struct {
			Nominal   string `json:"nominal"`
			ChunkSize int64  `json:"chunk_size"`
			Chunks    []struct {
				FileName string `json:"file_name"`
				Range    string `json:"range"`
			} `json:"chunks"`
		}
		path := "/api/v1/chunks?url=" + url.QueryEscape(args[0]) + "&size=" + strconv.FormatUint(size, 10)
		exitOnError(call(http.MethodGet, path, nil, http.StatusOK, &plan))

		fmt.Printf("%s in %d chunk(s) of %s\n", plan.Nominal, len(plan.Chunks), humanize.IBytes(uint64(plan.ChunkSize)))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tRANGE")
		for _, c := range plan.Chunks {
			fmt.Fprintf(w, "%s\tbytes=%s\n", c.FileName, c.Range)
		}
		w.Flush()
	},
}

var partsCmd = &cobra.Command{
	Use:   "parts [file]",
	Short: "Show the files backing a book on disk",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var parts struct {
			Parts      []string `json:"parts"`
			HasPart    bool     `json:"has_part"`
			SizeOnDisk int64    `json:"size_on_disk"`
		}
		exitOnError(call(http.MethodGet, "/api/v1/parts?file="+url.QueryEscape(args[0]), nil, http.StatusOK, &parts))

		for _, p := range parts.Parts {
			fmt.Println(p)
		}
		fmt.Printf("Size on disk: %s\n", humanize.Bytes(uint64(parts.SizeOnDisk)))
		if parts.HasPart {
			fmt.Println("Incomplete: at least one chunk is still downloading")
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show today's category log (download, library, error)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")
		query, _ := cmd.Flags().GetString("search")

		path := "/api/v1/logs/" + url.PathEscape(args[0])
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if query != "" {
			path += "/search"
			params.Set("q", query)
		}

		var result struct {
			Entries []struct {
				Timestamp string                 `json:"ts"`
				Level     string                 `json:"level"`
				Message   string                 `json:"msg"`
				Fields    map[string]interface{} `json:"fields"`
			} `json:"entries"`
		}
		exitOnError(call(http.MethodGet, path+"?"+params.Encode(), nil, http.StatusOK, &result))

		for _, e := range result.Entries {
			fmt.Printf("%s %-5s %s", e.Timestamp, e.Level, e.Message)
			for k, v := range e.Fields {
				fmt.Printf(" %s=%v", k, v)
			}
			fmt.Println()
		}
	},
}

func init() {
	deleteBookCmd.Flags().Bool("keep-file", false, "Only forget the book, leave the archive on disk")
	logsCmd.Flags().IntP("limit", "l", 50, "Number of entries to show")
	logsCmd.Flags().StringP("search", "q", "", "Only show entries containing this text")
}
