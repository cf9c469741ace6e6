// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// DistroWatchFeedURL is the daily releases feed.
const DistroWatchFeedURL = "https://distrowatch.com/news/dwd.xml"

type dwFeed struct {
	Items []dwItem `xml:"channel>item"`
}

type dwItem struct {
	Title string `xml:"title"`
}

// DistroWatchVersions maps distribution names to the versions
// announced in the DistroWatch feed. Titles have the shape
// "Distribution 1.2"; the last space splits name from version. An
// empty feedURL uses DistroWatchFeedURL.
//
// The feed covers far more distributions than the updaters do, which
// makes it useful for spotting releases the catalog does not track
// yet.
func DistroWatchVersions(ctx context.Context, c *Client, feedURL string) (map[string]string, error) {
	if feedURL == "" {
		feedURL = DistroWatchFeedURL
	}
	body, err := c.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var feed dwFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("distrowatch: parse feed: %w", err)
	}

	versions := make(map[string]string, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		i := strings.LastIndex(title, " ")
		if i <= 0 {
			continue
		}
		versions[title[:i]] = title[i+1:]
	}
	return versions, nil
}
