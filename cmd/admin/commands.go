package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/timeago"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotConfirmed   = errors.New("refusing to clear without -yes")
)

const previewLength = 60

func execute(ctx context.Context, out io.Writer, service *posts.Service, now time.Time, command string, yes bool) error {
	switch command {
	case "list":
		return list(ctx, out, service, now)

	case "sweep":
		swept := service.Sweep(ctx)
		fmt.Fprintf(out, "swept %d expired posts\n", swept)
		return nil

	case "clear":
		if !yes {
			return ErrNotConfirmed
		}
		cleared, err := service.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %d posts\n", cleared)
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func list(ctx context.Context, out io.Writer, service *posts.Service, now time.Time) error {
	recent, err := service.List(ctx)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Fprintln(out, "no posts")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGE\tDONMAI\tTEXT")
	for _, p := range recent {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.Id, timeago.Since(now, p.CreatedAt), p.ReactionCount, preview(p.Text))
	}
	return w.Flush()
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength-1]) + "…"
	}
	return text
}
