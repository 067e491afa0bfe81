package desktop

import (
	"context"
	"embed"
	"io/fs"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/app"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/httpapi"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend
var assets embed.FS

// Run opens the desktop window and blocks until it is closed.
// Requests the bundled frontend cannot answer fall through to the control API.
func Run(core *app.App) error {
	desk := NewApp(core)

	frontend, err := fs.Sub(assets, "frontend")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := httpapi.NewServer(ctx, httpapi.Deps{
		Queue:   core.Queue,
		Events:  core.Events,
		History: core.History,
		Health:  core.Health,
		Stream:  core,
		BaseURL: core.Client.BaseURL(),
	}, nil)

	return wails.Run(&options.App{
		Title:     "MediaDesk",
		Width:     1100,
		Height:    760,
		MinWidth:  800,
		MinHeight: 560,
		AssetServer: &assetserver.Options{
			Assets:  frontend,
			Handler: server.Handler(),
		},
		OnStartup:  desk.startup,
		OnShutdown: desk.shutdown,
		Bind: []interface{}{
			desk,
		},
	})
}
