package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onbrandapp/stryp-comic-studio/internal/config"
	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/batch"
	"github.com/onbrandapp/stryp-comic-studio/pkg/generator"
	"github.com/onbrandapp/stryp-comic-studio/pkg/publisher"
	"github.com/onbrandapp/stryp-comic-studio/pkg/session"
	"github.com/onbrandapp/stryp-comic-studio/pkg/storage"
	"github.com/onbrandapp/stryp-comic-studio/pkg/workflow"

	"github.com/shouni/go-http-kit/httpkit"
)

// BuildRepository はドキュメントストアだけを開きます。閲覧系の CLI はこれで足りるのだ。
func BuildRepository(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{Config: cfg}

	store, err := storage.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.onClose(func(context.Context) error { return store.Close() })

	repo, err := storage.NewRepository(store)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Repo = repo
	return app, nil
}

// BuildUploader はオブジェクトストアとアップローダーを組み立てて app に載せます。
func BuildUploader(ctx context.Context, app *AppContext) error {
	s := app.Config.Storage
	objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  s.Endpoint,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Bucket:    s.Bucket,
		Region:    s.Region,
		UseSSL:    s.UseSSL,
		PublicURL: s.PublicURL,
	})
	if err != nil {
		return err
	}
	uploader, err := storage.NewUploader(objects)
	if err != nil {
		return err
	}
	app.Uploader = uploader
	app.Publisher = publisher.NewPublisher(uploader)
	return nil
}

// BuildApp はサーバーと生成系の CLI が使うすべての部品を組み立てます。
func BuildApp(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app, err := BuildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*AppContext, error) {
		_ = app.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	if err := BuildUploader(ctx, app); err != nil {
		return fail(err)
	}

	httpClient := httpkit.New(cfg.HTTPTimeout)
	fetcher, err := asset.NewFetcher(httpClient, cfg.HTTPTimeout)
	if err != nil {
		return fail(err)
	}
	app.Fetcher = fetcher

	gen, err := InitializeGenerator(ctx, cfg, httpClient, fetcher)
	if err != nil {
		return fail(err)
	}
	app.Generator = gen

	hub := storage.NewHub(app.Repo)
	app.Hub = hub
	app.onClose(func(context.Context) error { hub.Close(); return nil })

	sessions, err := session.NewRegistry(app.Repo, cfg.WriteDelay)
	if err != nil {
		return fail(err)
	}
	app.Sessions = sessions
	// 保留中のデバウンス書き込みはストアを閉じる前に流す
	app.onClose(sessions.Close)

	token, err := InitializeToken(ctx, app)
	if err != nil {
		return fail(err)
	}
	app.Token = token

	manager, err := workflow.New(gen, app.Uploader, app.Repo, token)
	if err != nil {
		return fail(err)
	}
	app.Workflow = manager

	seq, err := batch.NewSequencer(manager, token, batch.Config{
		VisualInterval: cfg.Batch.VisualInterval,
		AudioInterval:  cfg.Batch.AudioInterval,
	})
	if err != nil {
		return fail(err)
	}
	app.Batch = seq

	if err := wireChanges(ctx, app); err != nil {
		return fail(err)
	}

	slog.InfoContext(ctx, "アプリケーションを初期化しました",
		"db", cfg.DBPath, "bucket", cfg.Storage.Bucket,
		"nats", cfg.NATSURL != "", "redis", cfg.RedisURL != "")
	return app, nil
}

// InitializeGenerator は gemini クライアント・画像生成キット・genai を束ねて生成クライアントを作ります。
// 参照メディアの取得は httpkit の共通クライアントに任せるのだ。
func InitializeGenerator(ctx context.Context, cfg *config.Config, httpClient httpkit.HTTPClient, fetcher *asset.Fetcher) (*generator.Client, error) {
	textClient, err := generator.NewTextClient(ctx, cfg.Gemini.APIKey, 0)
	if err != nil {
		return nil, err
	}
	imageGen, err := generator.NewImageGenerator(textClient, fetcher, httpClient)
	if err != nil {
		return nil, err
	}
	media, err := generator.NewGenaiModel(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}

	gen, err := generator.New(generator.Backends{
		Text:  textClient,
		Image: imageGen,
		Media: media,
	}, fetcher, generator.Config{
		ScriptModel:   cfg.Gemini.ScriptModel,
		ImageModel:    cfg.Gemini.ImageModel,
		VisionModel:   cfg.Gemini.VisionModel,
		VideoModel:    cfg.Gemini.VideoModel,
		SpeechModel:   cfg.Gemini.SpeechModel,
		StyleSuffix:   cfg.Gemini.StyleSuffix,
		ScriptTimeout: cfg.Gemini.ScriptTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("生成クライアントの初期化に失敗しました: %w", err)
	}
	return gen, nil
}

// InitializeToken は REDIS_URL があれば Redis、なければプロセス内のトークンを使います。
func InitializeToken(ctx context.Context, app *AppContext) (batch.Token, error) {
	if app.Config.RedisURL == "" {
		return batch.NewMemoryToken(), nil
	}
	rdb, err := batch.ConnectRedis(ctx, app.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return rdb.Close() })
	return batch.NewRedisToken(rdb, "", 0)
}

// wireChanges はストアの変更を購読ハブと NATS へ流し、他プロセス発の変更をセッションへ反映します。
func wireChanges(ctx context.Context, app *AppContext) error {
	var bridge *storage.NATSBridge
	if app.Config.NATSURL != "" {
		nc, err := storage.ConnectNATS(app.Config.NATSURL)
		if err != nil {
			return err
		}
		app.onClose(func(context.Context) error { nc.Close(); return nil })

		bridge, err = storage.NewNATSBridge(nc, app.Config.NATSSubject)
		if err != nil {
			return err
		}
		remoteCtx := context.WithoutCancel(ctx)
		if err := bridge.Start(remoteCtx, func(ev storage.ChangeEvent) {
			app.Hub.Notify(ev)
			if ev.Collection == storage.CollProjects && ev.Op == storage.OpPut {
				app.Sessions.RefreshFromStore(remoteCtx, ev.UserID, ev.ID)
			}
		}); err != nil {
			return err
		}
		app.onClose(func(context.Context) error { return bridge.Close() })
	}

	app.Store.AddListener(func(ev storage.ChangeEvent) {
		app.Hub.Notify(ev)
		if bridge != nil {
			bridge.Publish(ev)
		}
	})
	return nil
}
