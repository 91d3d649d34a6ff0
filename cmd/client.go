package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/floodrescue/core/intake"
)

var serverURL string

var httpClient = &http.Client{Timeout: 10 * time.Second}

var submitReq intake.Request

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a rescue request to a running service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.OutOrStdout(), http.MethodPost, "/api/tickets", submitReq)
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <ticket-id> <rescuer-id>",
	Short: "Accept a ticket on behalf of a rescuer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.OutOrStdout(), http.MethodPost, "/api/tickets/"+args[0]+"/accept",
			map[string]string{"rescuer_id": args[1]})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <ticket-id>",
	Short: "Show whether a ticket is still open",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd.OutOrStdout(), http.MethodGet, "/api/tickets/"+args[0]+"/availability", nil)
	},
}

func init() {
	def := os.Getenv("RESCUE_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	for _, c := range []*cobra.Command{submitCmd, acceptCmd, statusCmd} {
		c.Flags().StringVar(&serverURL, "server", def, "base URL of the dispatch API")
		rootCmd.AddCommand(c)
	}

	f := submitCmd.Flags()
	f.StringVar(&submitReq.Phone, "phone", "", "victim phone number")
	f.Float64Var(&submitReq.Lat, "lat", 0, "latitude")
	f.Float64Var(&submitReq.Lng, "lng", 0, "longitude")
	f.StringVar(&submitReq.Address, "address", "", "free text address")
	f.IntVar(&submitReq.PeopleCount, "people", 1, "number of people")
	f.IntVar(&submitReq.Priority, "priority", 0, "priority 1-5, 0 for default")
	f.StringVar(&submitReq.Note, "note", "", "note for rescuers")
	f.BoolVar(&submitReq.Elderly, "elderly", false, "elderly people present")
	f.BoolVar(&submitReq.Children, "children", false, "children present")
	f.BoolVar(&submitReq.Disabled, "disabled", false, "disabled people present")
	submitReq.Source = "cli"
	_ = submitCmd.MarkFlagRequired("lat")
	_ = submitCmd.MarkFlagRequired("lng")
}

// call sends body as JSON and prints the indented response. Non-2xx statuses
// are returned as errors after the body is printed.
func call(out io.Writer, method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(out, strings.TrimSpace(string(raw)))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
