package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/planscrape/internal/app"
	"github.com/law-makers/planscrape/internal/cookiestore"
	"github.com/law-makers/planscrape/internal/ui"
)

func newCookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage cookies replayed into scraper sessions",
		Long: `Import, show and delete the cookies replayed into an authority's session.

Some portals only answer searches once a disclaimer has been accepted in a
browser. Capture the cookies it sets once and import them here; every
scraper for that authority then starts with them. Cookies are kept in the
OS keyring, or in ~/.planscrape/cookies where no keyring is available.`,
		Example: `  # Import cookies exported by a browser extension
  planscrape cookies import Rushmoor --from json < cookies.json

  # Import a curl cookie jar
  planscrape cookies import Rushmoor --from netscape < cookies.txt

  # Drop them again
  planscrape cookies delete Rushmoor --yes`,
	}
	cmd.AddCommand(newCookiesImportCmd(), newCookiesShowCmd(), newCookiesDeleteCmd())
	return cmd
}

func cookieStore(a *app.Application) (cookiestore.Store, error) {
	if a.Cookies == nil {
		return nil, errors.New("no cookie store available")
	}
	return a.Cookies, nil
}

// authorityName resolves name case-insensitively so cookies are stored under
// the key the scraper loads them with.
func authorityName(a *app.Application, name string) (string, string, error) {
	e, ok := a.Registry.Lookup(name)
	if !ok {
		return "", "", fmt.Errorf("unknown authority %q", name)
	}
	host := ""
	if u, err := url.Parse(e.Site.SearchURL); err == nil {
		host = u.Hostname()
	}
	return e.Name(), host, nil
}

func newCookiesImportCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "import <authority>",
		Short: "Import cookies for an authority from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)
			store, err := cookieStore(a)
			if err != nil {
				return err
			}
			name, host, err := authorityName(a, args[0])
			if err != nil {
				return err
			}

			var cookies []*http.Cookie
			in := cmd.InOrStdin()
			switch from {
			case "interactive":
				cookies, err = importInteractive(in, cmd.OutOrStdout(), host)
			case "json":
				cookies, err = importJSON(in)
			case "netscape":
				cookies, err = importNetscape(in)
			default:
				return fmt.Errorf("unsupported format: %s (use: interactive, json, netscape)", from)
			}
			if err != nil {
				return fmt.Errorf("failed to import cookies: %w", err)
			}
			if len(cookies) == 0 {
				return errors.New("no cookies imported")
			}
			for _, c := range cookies {
				if c.Domain == "" {
					c.Domain = host
				}
				if c.Path == "" {
					c.Path = "/"
				}
			}

			if err := store.Save(name, cookies); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d cookies stored for %s\n", ui.Success("✓"), len(cookies), ui.Bold(name))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "json", "Input format: interactive, json, netscape")
	return cmd
}

func newCookiesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <authority>",
		Short: "Show the stored cookies of an authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)
			store, err := cookieStore(a)
			if err != nil {
				return err
			}
			name, _, err := authorityName(a, args[0])
			if err != nil {
				return err
			}
			cookies, err := store.Load(name)
			if errors.Is(err, cookiestore.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "No cookies stored for %s\n", name)
				return nil
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n%s (%d)\n", ui.Bold(name), len(cookies))
			for _, c := range cookies {
				expiry := "session"
				if !c.Expires.IsZero() {
					expiry = c.Expires.Format(time.RFC1123)
				}
				fmt.Fprintf(w, "  • %s %s\n", c.Name, ui.Info(fmt.Sprintf("(domain: %s, expires: %s)", c.Domain, expiry)))
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}

func newCookiesDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <authority>",
		Short: "Delete the stored cookies of an authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)
			store, err := cookieStore(a)
			if err != nil {
				return err
			}
			name, _, err := authorityName(a, args[0])
			if err != nil {
				return err
			}
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete the cookies of %s? [y/N]: ", name)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if ans := strings.TrimSpace(answer); ans != "y" && ans != "Y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}
			if err := store.Delete(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cookies of %s deleted\n", ui.Success("✓"), name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func importInteractive(in io.Reader, out io.Writer, host string) ([]*http.Cookie, error) {
	fmt.Fprintln(out, "Open the portal in a browser, accept its terms, then copy each cookie")
	fmt.Fprintln(out, "from DevTools (Application > Storage > Cookies).")

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nCookie Name (or press Enter to finish): ")
		if !scanner.Scan() {
			break
		}
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			break
		}
		fmt.Fprint(out, "Cookie Value: ")
		if !scanner.Scan() {
			break
		}
		value := strings.TrimSpace(scanner.Text())
		if value == "" {
			fmt.Fprintln(out, ui.Warn("Skipping cookie with empty value"))
			continue
		}
		fmt.Fprintf(out, "Domain [%s]: ", host)
		if !scanner.Scan() {
			break
		}
		domain := strings.TrimSpace(scanner.Text())
		if domain == "" {
			domain = host
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Domain: domain, Path: "/"})
		fmt.Fprintf(out, "%s Added: %s (domain: %s)\n", ui.Success("✓"), name, domain)
	}
	return cookies, scanner.Err()
}

func importJSON(in io.Reader) ([]*http.Cookie, error) {
	var stored []cookiestore.Cookie
	if err := json.NewDecoder(in).Decode(&stored); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

// importNetscape reads the tab separated cookie jar format written by curl
// and most browser extensions.
func importNetscape(in io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		httpOnly := strings.HasPrefix(line, "#HttpOnly_")
		if httpOnly {
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			continue
		}
		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   fields[3] == "TRUE",
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if secs, err := strconv.ParseInt(fields[4], 10, 64); err == nil && secs > 0 {
			c.Expires = time.Unix(secs, 0).UTC()
		}
		cookies = append(cookies, c)
	}
	return cookies, scanner.Err()
}
