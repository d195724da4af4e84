package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/finder"
)

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list loaded dictionaries",
	Action: func(c *cli.Context) error {
		e, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		tbl := table.New("ID", "Name", "Format", "Articles", "Words").WithWriter(c.App.Writer)
		for _, d := range e.svc.Dictionaries() {
			tbl.AddRow(d.ID, d.Name, d.Format, d.Articles, d.Words)
		}
		tbl.Print()
		fmt.Fprintln(c.App.Writer, e.svc.Status().Dictionaries, "dictionaries")
		return nil
	},
}

var groupsCommand = &cli.Command{
	Name:  "groups",
	Usage: "list configured groups and their members",
	Action: func(c *cli.Context) error {
		e, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		tbl := table.New("Group", "Dictionaries").WithWriter(c.App.Writer)
		for _, g := range e.svc.Groups() {
			names := make([]string, 0, len(g.Dictionaries))
			for _, d := range g.Dictionaries {
				names = append(names, d.Name)
			}
			tbl.AddRow(g.Name, strings.Join(names, ", "))
		}
		tbl.Print()
		return nil
	},
}

var prefixCommand = &cli.Command{
	Name:      "prefix",
	Usage:     "list headwords starting with QUERY",
	ArgsUsage: "QUERY",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected one QUERY argument", 2)
		}
		e, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.svc.Prefix(c.Context, c.Args().First(), c.String("group"))
		if err != nil {
			return err
		}
		printWords(c.App.Writer, res)
		return nil
	},
}

var articleCommand = &cli.Command{
	Name:      "article",
	Usage:     "print the articles for WORD",
	ArgsUsage: "WORD",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected one WORD argument", 2)
		}
		e, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()
		return printArticle(c, e, c.Args().First())
	},
}

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "read queries from stdin; \":a WORD\" prints an article",
	Action: func(c *cli.Context) error {
		e, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		session := e.svc.Finder().NewSession(func(res finder.Result) {
			printWords(c.App.Writer, res)
		})
		sc := bufio.NewScanner(c.App.Reader)
		for sc.Scan() {
			line := sc.Text()
			if word, ok := strings.CutPrefix(line, ":a "); ok {
				if err := printArticle(c, e, word); err != nil {
					fmt.Fprintln(c.App.ErrWriter, err)
				}
				continue
			}
			target, err := e.svc.Target(c.String("group"))
			if err != nil {
				return err
			}
			<-session.Query(c.Context, line, target)
		}
		return sc.Err()
	},
}

func printWords(w io.Writer, res finder.Result) {
	for _, word := range res.Words {
		fmt.Fprintln(w, word)
	}
}

func printArticle(c *cli.Context, e *engine, word string) error {
	results, err := e.svc.Article(c.Context, word, c.String("group"))
	if errors.Is(err, dict.ErrNotFound) {
		fmt.Fprintf(c.App.Writer, "%s: not found\n", word)
		return nil
	}
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "-->%s\n%s\n\n", r.DictName, r.Body)
	}
	return nil
}
