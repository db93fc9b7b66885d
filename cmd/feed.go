package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/formatter"
	"github.com/desertthunder/vgen/internal/shared"
)

// FeedList prints the cached feed, newest first.
func (r *Runner) FeedList(ctx context.Context, cmd *cli.Command) error {
	f, closeFeed, err := r.openFeed(ctx, r.notifier())
	if err != nil {
		return err
	}
	defer closeFeed()

	videos, err := f.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(videos, cmd.Bool("pretty"))
	}
	if len(videos) == 0 {
		return r.writePlain("The feed cache is empty. Run 'vgen feed sync' to fetch it.\n")
	}
	r.writePlainHeader(fmt.Sprintf("Feed (%d)", len(videos)))
	return r.writePlain("%s\n", formatter.FeedTable(videos))
}

// FeedSync refreshes the cache from the catalog.
func (r *Runner) FeedSync(ctx context.Context, cmd *cli.Command) error {
	f, closeFeed, err := r.openFeed(ctx, r.notifier())
	if err != nil {
		return err
	}
	defer closeFeed()

	n, err := f.Sync(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("failed to sync feed: %w", err)
	}
	return r.writePlain("✓ Synced %d videos\n", n)
}

// FeedLike toggles the signed-in user's like on a cached video.
func (r *Runner) FeedLike(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: video id", shared.ErrMissingArgument)
	}
	f, closeFeed, err := r.openFeed(ctx, r.notifier())
	if err != nil {
		return err
	}
	defer closeFeed()

	video, err := f.ToggleLike(ctx, id)
	if err != nil {
		return err
	}
	verb := "Unliked"
	if video.Liked {
		verb = "Liked"
	}
	return r.writePlain("✓ %s %q (%d likes)\n", verb, video.Title, video.LikeCount)
}

// FeedExport writes the cached feed as csv, md, txt or json.
func (r *Runner) FeedExport(ctx context.Context, cmd *cli.Command) error {
	f, closeFeed, err := r.openFeed(ctx, r.notifier())
	if err != nil {
		return err
	}
	defer closeFeed()

	videos, err := f.List(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	export := formatter.NewFeedExport(cmd.String("title"), videos)
	output := cmd.String("output")

	switch format := strings.ToLower(cmd.String("format")); format {
	case "csv":
		res, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s and %s\n", res.VideosFile, res.MetadataFile)
	case "md", "markdown":
		coverURL := ""
		if cmd.Bool("cover") && len(videos) > 0 {
			coverURL = videos[0].CoverURL
		}
		res, err := formatter.WriteMarkdownExport(ctx, export, output, coverURL)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n", strings.Join(res.Files, ", "))
	case "txt", "text":
		path, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n", path)
	case "json":
		path, err := formatter.WriteJSONExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Wrote %s\n", path)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}

	r.logger.Info("feed exported", "videos", len(videos))
	return nil
}
