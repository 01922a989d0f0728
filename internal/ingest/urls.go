package ingest

import (
	"sort"

	"github.com/dghubble/go-twitter/twitter"
)

const mediaTypeVideo = "video"

// CollectMentionedURLs returns the expanded links mentioned by tweet,
// including those of the extended form of a long post.
func CollectMentionedURLs(tweet *twitter.Tweet) []string {
	if tweet == nil {
		return nil
	}
	var urls []string
	urls = appendEntityURLs(urls, tweet.Entities)
	if tweet.ExtendedTweet != nil {
		urls = appendEntityURLs(urls, tweet.ExtendedTweet.Entities)
	}
	return sortedSet(urls)
}

// CollectMediaURLs returns the media attachment URLs of tweet. Standard
// attachments contribute their HTTPS media URL. Extended attachments of type
// video contribute only their first listed variant.
func CollectMediaURLs(tweet *twitter.Tweet) []string {
	if tweet == nil {
		return nil
	}
	var urls []string
	urls = appendMediaURLs(urls, tweet.Entities)
	urls = appendExtendedMediaURLs(urls, tweet.ExtendedEntities)
	if ext := tweet.ExtendedTweet; ext != nil {
		urls = appendMediaURLs(urls, ext.Entities)
		urls = appendExtendedMediaURLs(urls, ext.ExtendedEntities)
	}
	return sortedSet(urls)
}

// CollectAllURLs is the union of mentioned and media URLs for tweet.
func CollectAllURLs(tweet *twitter.Tweet) []string {
	return sortedSet(CollectMentionedURLs(tweet), CollectMediaURLs(tweet))
}

func appendEntityURLs(dst []string, entities *twitter.Entities) []string {
	if entities == nil {
		return dst
	}
	for _, u := range entities.Urls {
		if u.ExpandedURL != "" {
			dst = append(dst, u.ExpandedURL)
		}
	}
	return dst
}

func appendMediaURLs(dst []string, entities *twitter.Entities) []string {
	if entities == nil {
		return dst
	}
	for _, m := range entities.Media {
		if m.MediaURLHttps != "" {
			dst = append(dst, m.MediaURLHttps)
		}
	}
	return dst
}

func appendExtendedMediaURLs(dst []string, extended *twitter.ExtendedEntity) []string {
	if extended == nil {
		return dst
	}
	for _, m := range extended.Media {
		if m.Type == mediaTypeVideo && len(m.VideoInfo.Variants) > 0 && m.VideoInfo.Variants[0].URL != "" {
			dst = append(dst, m.VideoInfo.Variants[0].URL)
			continue
		}
		if m.MediaURLHttps != "" {
			dst = append(dst, m.MediaURLHttps)
		}
	}
	return dst
}

func sortedSet(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range groups {
		for _, s := range group {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
