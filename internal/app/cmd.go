package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は認証APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はアバター照合ワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用して終了することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はサーバーのヘルスエンドポイントを叩いて終了することを示す。
	// distrolessイメージにはシェルがないため、Dockerヘルスチェックはこれを使う。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は先頭のコマンドライン引数をサブコマンドとして解釈する。
// 引数なし・未知のサブコマンドはサーバーモードにフォールバックする。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
