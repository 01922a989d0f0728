package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	twittersrc "github.com/JakeFAU/tweetstream/internal/source/twitter"
)

// Credential keys read from the dotenv file or the environment.
const (
	EnvConsumerKey       = "TWITTER_CONSUMER_KEY"
	EnvConsumerSecret    = "TWITTER_CONSUMER_SECRET"
	EnvAccessToken       = "TWITTER_ACCESS_TOKEN"
	EnvAccessTokenSecret = "TWITTER_ACCESS_TOKEN_SECRET"
)

// ErrMissingCredentials is wrapped when a required key has no value.
var ErrMissingCredentials = errors.New("missing credentials")

// LoadCredentials reads OAuth keys from a dotenv file. Environment variables
// take precedence over file values. A missing file is tolerated when the
// environment supplies every key.
func LoadCredentials(path string) (twittersrc.Credentials, error) {
	values := map[string]string{}
	if path != "" {
		fileValues, err := godotenv.Read(path)
		switch {
		case err == nil:
			values = fileValues
		case errors.Is(err, os.ErrNotExist):
		default:
			return twittersrc.Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
		}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(values[key])
	}

	creds := twittersrc.Credentials{
		ConsumerKey:       lookup(EnvConsumerKey),
		ConsumerSecret:    lookup(EnvConsumerSecret),
		AccessToken:       lookup(EnvAccessToken),
		AccessTokenSecret: lookup(EnvAccessTokenSecret),
	}

	var missing []string
	for key, v := range map[string]string{
		EnvConsumerKey:       creds.ConsumerKey,
		EnvConsumerSecret:    creds.ConsumerSecret,
		EnvAccessToken:       creds.AccessToken,
		EnvAccessTokenSecret: creds.AccessTokenSecret,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return twittersrc.Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return creds, nil
}
