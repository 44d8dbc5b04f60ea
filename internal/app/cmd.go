package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// defaultHealthcheckPort はSERVER_PORT未設定時のヘルスチェック先ポート。
const defaultHealthcheckPort = "8080"

// NewRootCommand はfinreportのコマンドツリーを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// ログ出力先にはwを使う。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "finreport",
		Short: "Authentication API server for finreport",
		Long: `finreport serves the account and authentication API:
password and social login, JWT issuance, email verification and password reset.`,
		// アプリケーション側でエラーを返すため、使い方の表示は抑止する。
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, w, CommandServe)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newModeCommand(w, CommandServe, "Start the API server"),
		newModeCommand(w, CommandWorker, "Start the background worker"),
		newModeCommand(w, CommandMigrate, "Apply pending database migrations"),
		newHealthcheckCommand(),
	)
	return root
}

// newModeCommand は設定を読み込んでから起動するサブコマンドを生成する。
func newModeCommand(w io.Writer, mode Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, w, mode)
		},
	}
}

// newHealthcheckCommand はhealthcheckサブコマンドを生成する。
// 軽量に動作させるため、設定の読み込みは行わない。
func newHealthcheckCommand() *cobra.Command {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = defaultHealthcheckPort
	}

	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cmd.Flags().GetString("port")
			if err != nil {
				return err
			}
			return runHealthcheck(cmd.Context(), p)
		},
	}
	cmd.Flags().String("port", port, "port of the local API server")
	return cmd
}
