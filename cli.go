package main

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"smartlauncher/internal/auth"
	"smartlauncher/internal/bridge"
	"smartlauncher/internal/config"
	"smartlauncher/internal/launcher"
	"smartlauncher/internal/models"
)

type clientFlags struct {
	server string
	token  string
}

func addClientCommands(root *cobra.Command) {
	flags := &clientFlags{}
	root.PersistentFlags().StringVar(&flags.server, "server", "", "launcher daemon url (env SMARTLAUNCHER_URL)")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "api token (env SMARTLAUNCHER_API_TOKEN)")

	open := &cobra.Command{
		Use:   "open [tool]",
		Short: "Open the destination app, optionally at a tool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool := ""
			if len(args) == 1 {
				tool = args[0]
			}
			return flags.call(cmd.Context(), models.Request{Action: models.ActionOpenTool, Tool: tool})
		},
	}

	var linkTool string
	link := &cobra.Command{
		Use:   "link <url>",
		Short: "Open a remote PDF in the destination app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.call(cmd.Context(), models.Request{Action: models.ActionOpenLink, URL: args[0], Tool: linkTool})
		},
	}
	link.Flags().StringVar(&linkTool, "tool", "", "tool to open the document with")

	var menuURL string
	menu := &cobra.Command{
		Use:       "menu <item>",
		Short:     "Trigger a context menu entry for a link",
		Args:      cobra.ExactArgs(1),
		ValidArgs: launcher.MenuIDs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.call(cmd.Context(), models.Request{Action: models.ActionContextMenu, MenuID: args[0], URL: menuURL})
		},
	}
	menu.Flags().StringVar(&menuURL, "url", "", "link the menu was opened on")
	_ = menu.MarkFlagRequired("url")

	var (
		sendTool     string
		sendLanguage string
	)
	send := &cobra.Command{
		Use:   "send <file.pdf>...",
		Short: "Transfer local PDFs to the destination app",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.send(cmd.Context(), args, sendTool, sendLanguage)
		},
	}
	send.Flags().StringVar(&sendTool, "tool", "", "tool to open the files with")
	send.Flags().StringVar(&sendLanguage, "language", "", "destination language prefix")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tool launch counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.stats(cmd.Context())
		},
	}

	token := &cobra.Command{
		Use:   "token",
		Short: "Generate a random api token",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			pterm.Println(t)
			return nil
		},
	}

	detect := &cobra.Command{
		Use:   "detect <url>",
		Short: "List the PDF links on a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.detect(cmd.Context(), args[0])
		},
	}

	root.AddCommand(open, link, menu, send, detect, stats, token)
}

func (f *clientFlags) client() (*bridge.Client, error) {
	server := f.server
	if server == "" {
		cfg, err := config.Load(os.Getenv("SMARTLAUNCHER_CONFIG"))
		if err != nil {
			return nil, err
		}
		server = serverURL(cfg)
		if f.token == "" {
			f.token = cfg.BasicConfig.APIToken
		}
	}
	if f.token == "" {
		f.token = os.Getenv("SMARTLAUNCHER_API_TOKEN")
	}
	// postmessage transfers wait up to the tab-ready bound twice
	hc := &http.Client{Timeout: 3 * time.Minute}
	return bridge.NewClient(server, bridge.WithToken(f.token), bridge.WithHTTPClient(hc))
}

func (f *clientFlags) call(ctx context.Context, req models.Request) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	resp, err := c.Call(ctx, req)
	if err != nil {
		pterm.Error.Printf("%s failed: %v\n", req.Action, err)
		return err
	}
	printOpened(resp)
	return nil
}

func (f *clientFlags) send(ctx context.Context, paths []string, tool, language string) error {
	c, err := f.client()
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(mw, paths, tool, language))
	}()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Transferring %d file(s)", len(paths)))
	resp, err := c.Upload(ctx, mw.FormDataContentType(), pr)
	if err != nil {
		if spinner != nil {
			spinner.Fail(err.Error())
		}
		return err
	}
	if spinner != nil {
		spinner.Success(fmt.Sprintf("Transferred via %s", resp.TransferMethod))
	}
	printOpened(resp)
	return nil
}

func writeUpload(mw *multipart.Writer, paths []string, tool, language string) error {
	for _, path := range paths {
		if err := writeFilePart(mw, path); err != nil {
			return err
		}
	}
	if tool != "" {
		if err := mw.WriteField("tool", tool); err != nil {
			return err
		}
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("detect type of %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	name := filepath.Base(path)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	header.Set("Content-Type", mtype.String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.WriteField("lastModified_"+name, strconv.FormatInt(info.ModTime().UnixMilli(), 10))
}

func (f *clientFlags) stats(ctx context.Context) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	resp, err := c.Call(ctx, models.Request{Action: models.ActionGetStats})
	if err != nil {
		pterm.Error.Printf("getStats failed: %v\n", err)
		return err
	}
	if len(resp.Stats) == 0 {
		pterm.Info.Println("No launches recorded yet")
		return nil
	}
	tools := make([]string, 0, len(resp.Stats))
	for tool := range resp.Stats {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	rows := pterm.TableData{{"Tool", "Launches"}}
	for _, tool := range tools {
		rows = append(rows, []string{tool, strconv.Itoa(resp.Stats[tool])})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func (f *clientFlags) detect(ctx context.Context, pageURL string) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	resp, err := c.Call(ctx, models.Request{Action: models.ActionDetectPDFs, URL: pageURL})
	if err != nil {
		pterm.Error.Printf("detectPdfs failed: %v\n", err)
		return err
	}
	page := resp.Page
	if page == nil {
		return fmt.Errorf("daemon returned no page info")
	}
	if page.IsPDFPage {
		pterm.Success.Printf("%s is a PDF\n", page.URL)
	}
	if len(page.PDFLinks) == 0 {
		pterm.Info.Println("No PDF links found")
		return nil
	}
	rows := pterm.TableData{{"Link", "Text"}}
	for _, l := range page.PDFLinks {
		rows = append(rows, []string{l.URL, l.Text})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printOpened(resp *models.Response) {
	pterm.Success.Println("Destination opened")
	if resp.URL != "" {
		pterm.Println(fmt.Sprintf("  URL: %s", resp.URL))
	}
	if resp.TabID != "" {
		pterm.Println(fmt.Sprintf("  Tab: %s", resp.TabID))
	}
	if resp.SessionID != "" {
		pterm.Println(fmt.Sprintf("  Session: %s (%s)", resp.SessionID, resp.TransferMethod))
	}
}
