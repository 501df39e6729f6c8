package app

// Command はサブコマンド（起動モード）。
type Command string

const (
	// CommandServe は認証ゲートウェイのAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandMigrate はusersテーブルのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を叩いて終了する。
	// distrolessイメージにはcurlが無いため、DockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
	// CommandVersion はビルドバージョンを出力して終了する。
	CommandVersion Command = "version"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
	string(CommandVersion):     CommandVersion,
}

// ParseCommand はargs[0]をサブコマンドとして解釈する。
// 引数なし、または未知のコマンドはCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
