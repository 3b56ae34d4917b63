// Command main seeds the document store with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"inkwell/internal/bootstrap"
	"inkwell/internal/config"
	"inkwell/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 10, "Number of users to create")
	postsPerUser := flag.Int("posts", 3, "Posts per user")
	commentsPerPost := flag.Int("comments", 2, "Comments per post")
	followsPerUser := flag.Int("follows", 3, "Follow edges per user")
	bookmarksEach := flag.Int("bookmarks", 2, "Bookmarks per user")
	fixture := flag.String("fixture", "", "Apply a YAML fixture file instead of random data")
	flag.Parse()

	log.Println("🌱 Store Seeder")
	log.Println("===============")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() {
		if err := rt.Shutdown(ctx); err != nil {
			log.Printf("Runtime shutdown error: %v", err)
		}
	}()

	s := seed.NewSeeder(rt.Store)

	var summary *seed.Summary
	if *fixture != "" {
		log.Printf("Applying fixture: %s (ignoring other flags)\n", *fixture)
		fx, err := seed.LoadFixture(*fixture)
		if err != nil {
			log.Fatalf("❌ Fixture load failed: %v", err)
		}
		summary, err = s.ApplyFixture(ctx, fx)
		if err != nil {
			log.Fatalf("❌ Fixture seeding failed: %v", err)
		}
	} else {
		summary, err = s.Run(ctx, seed.Options{
			NumUsers:        *numUsers,
			PostsPerUser:    *postsPerUser,
			CommentsPerPost: *commentsPerPost,
			FollowsPerUser:  *followsPerUser,
			BookmarksEach:   *bookmarksEach,
		})
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
	}

	log.Printf("✅ Done: %d profiles, %d posts, %d comments, %d follows, %d bookmarks",
		summary.Profiles, summary.Posts, summary.Comments, summary.Follows, summary.Bookmarks)
}
