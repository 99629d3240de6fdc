// Package tokenwatch embeds LLM token accounting into a Go program.
//
// A Client keeps per-session, per-user and global token counters, raises
// alerts when configured ceilings are crossed and persists the counters to a
// JSON file, SQLite or Redis.
//
//	client, _ := tokenwatch.New(ctx,
//	    tokenwatch.WithFile("data/usage.json"),
//	    tokenwatch.WithMaxTokens(tokenwatch.ScopePrivate, 100_000),
//	    tokenwatch.WithRecipients("1001"),
//	    tokenwatch.WithWebhook("http://bot:8080/notify", ""),
//	)
//	defer client.Close()
//
//	res := client.Record(ctx, tokenwatch.Event{
//	    UserID:           "42",
//	    PromptTokens:     tokenwatch.Tokens(120),
//	    CompletionTokens: tokenwatch.Tokens(30),
//	})
//	for _, a := range res.Alerts {
//	    log.Println(a.Message)
//	}
//
// Completions returned by github.com/sashabaranov/go-openai can be recorded
// directly with RecordCompletion.
package tokenwatch
