package main

import (
	"context"
	"flag"
	"net"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"freightflow/backend/internal/logger"
	"freightflow/backend/internal/smtp"
)

// 本地 SMTP 收件端，用于联调邮件渠道。
// Sink 不提供 STARTTLS，服务端需配置 FREIGHTFLOW_SMTP_TLS=none。
func main() {
	addr := flag.String("addr", "127.0.0.1:2525", "监听地址")
	reject := flag.String("reject", "", "拒收的收件人，逗号分隔")
	flag.Parse()

	log, err := logger.New(logger.Options{Level: "info", Development: true, Service: "freightflow-mailsink"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	var rejected []string
	if *reject != "" {
		rejected = strings.Split(*reject, ",")
	}
	sink := smtp.NewSink(log, rejected...)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", *addr), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = sink.Close()
	}()

	log.Info("mail sink listening", zap.String("addr", ln.Addr().String()), zap.Strings("reject", rejected))
	if err := sink.Serve(ln); err != nil && ctx.Err() == nil {
		log.Fatal("mail sink stopped", zap.Error(err))
	}
	log.Info("mail sink stopped", zap.Int("received", len(sink.Received())))
}
