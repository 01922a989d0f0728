// Package cmd defines the tweetstream CLI.
//
// Architecture overview:
//   - Listener: internal/listener subscribes to a push source (the filtered stream endpoint or a NATS subject)
//     with an immutable filter.Spec. Each delivered post becomes an ingest.Record and is offered to a bounded
//     in-memory queue without blocking; when the queue is full the record is dropped and logged.
//   - Writer: internal/writer is the single consumer. It appends each record's raw JSON as one line to an hourly
//     file under <output>/<yyyyMMdd_HHmmss>/tweets, writes info.json once, and optionally harvests referenced
//     media into the run's media directory.
//   - Archive: closed hour files are offered to internal/archive, which uploads them to a local directory, GCS or
//     S3 from one background goroutine and announces each upload on Pub/Sub or NATS.
//   - Shutdown: internal/shutdown stops the listener, interrupts the writer, waits for both, then closes the
//     output file and drains the archive. Triggers are SIGINT/SIGTERM, "q" or "quit" on stdin, POST
//     /v1/shutdown on the admin server, or the source failing.
//
// Quick checklist:
//   - Credentials: TWITTER_CONSUMER_KEY, TWITTER_CONSUMER_SECRET, TWITTER_ACCESS_TOKEN and
//     TWITTER_ACCESS_TOKEN_SECRET in a dotenv file (--credentials) or the environment.
//   - Configuration: flags, a config file (--config), or INGEST_* environment variables such as
//     INGEST_QUEUE_CAPACITY and INGEST_ARCHIVE_KIND.
//   - Run locally: go run . stream -t golang -o output
package cmd
