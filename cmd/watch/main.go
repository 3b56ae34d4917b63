// Command main tails live queries against the document store and prints each
// snapshot as it arrives. Useful for watching the effect of seeding or of a
// second process writing to the same backend.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inkwell/internal/bootstrap"
	"inkwell/internal/config"
	"inkwell/internal/consistency"
	"inkwell/internal/service"
	"inkwell/internal/session"
	"inkwell/internal/subscription"
	"inkwell/internal/view"
)

func main() {
	profileID := flag.String("profile", "", "Also watch the composed view for this profile id")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	subs := subscription.NewManager(rt.Store)
	engine := consistency.NewEngine(rt.Store)
	posts := service.NewPostService(rt.Store, engine, subs)

	if cfg.IdentityToken != "" {
		provider := session.NewTokenProvider(cfg.JWTSecret)
		if err := provider.SetToken(cfg.IdentityToken); err != nil {
			log.Fatalf("Invalid IDENTITY_TOKEN: %v", err)
		}
		mgr := session.NewManager(rt.Store, provider)
		sess, err := mgr.Start(ctx)
		if err != nil {
			log.Fatalf("Session start failed: %v", err)
		}
		log.Printf("Signed in as %s (%s)", sess.Profile.Name, sess.Profile.ID)
	}

	feed, err := posts.SubscribeFeed(ctx)
	if err != nil {
		log.Fatalf("Feed subscription failed: %v", err)
	}
	go func() {
		for snap := range feed.Snapshots() {
			if snap.Err != nil {
				log.Printf("feed stream error: %v", snap.Err)
				return
			}
			log.Printf("feed: %d posts", len(snap.Items))
			for i, p := range snap.Items {
				if i >= 5 {
					log.Printf("  … and %d more", len(snap.Items)-5)
					break
				}
				log.Printf("  [%s] %s by %s", p.CreatedAt.Format(time.RFC3339), p.Title, p.Author)
			}
		}
	}()

	var profileView *view.ProfileViewStream
	if *profileID != "" {
		composer := view.NewComposer(subs)
		profileView, err = composer.ComposeProfileView(ctx, *profileID)
		if err != nil {
			log.Fatalf("Profile view subscription failed: %v", err)
		}
		go func() {
			for snap := range profileView.Snapshots() {
				if snap.Err != nil {
					log.Printf("profile view error: %v", snap.Err)
					return
				}
				printView(snap.View)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	feed.Unsubscribe()
	if profileView != nil {
		profileView.Close()
	}
	if err := subs.Shutdown(shutdownCtx); err != nil {
		log.Printf("Subscription shutdown error: %v", err)
	}
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Printf("Runtime shutdown error: %v", err)
	}
}

func printView(v view.ProfileView) {
	name := "(absent)"
	if v.Profile != nil {
		name = v.Profile.Name
	}
	log.Printf("profile %s: postsCount=%d posts=%d followers=%d following=%d",
		name, v.PostsCount, len(v.Posts), len(v.Followers), len(v.Following))
}
