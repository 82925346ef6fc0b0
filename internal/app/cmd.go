package app

// Command はbacklogrollの起動モードを表す。
type Command string

const (
	// CommandServe はライブラリ・同期・提案のHTTP APIを提供する。
	CommandServe Command = "serve"
	// CommandWorker は未同期エントリの定期同期と再同期ジョブを実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIの /health を確認して終了する。
	// distrolessイメージにはcurlがないため、DockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数がない場合や未知のコマンドはserveとして扱い、2つ目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
