// Package main: curatorctl, служебная утилита:
//
//	curatorctl hash <пароль>                      хеш Argon2id для ADMIN_PASSWORD_HASH
//	curatorctl token --discord-id ID [--role NAD]  выпустить JWT (создаёт участника)
//	curatorctl rebuild [--project ID]              пересчитать агрегаты по таблице голосов
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"serotonyl.ru/monad-curator/internal/app"
	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/config"
	"serotonyl.ru/monad-curator/internal/features/admin"
	"serotonyl.ru/monad-curator/internal/features/members"
)

func printUsage() {
	fmt.Fprint(os.Stderr, "usage: curatorctl hash <password>\n")
	fmt.Fprint(os.Stderr, "usage: curatorctl token --discord-id ID [--username NAME] [--role NAD] [--admin] [--ttl 168h]\n")
	fmt.Fprint(os.Stderr, "usage: curatorctl rebuild [--project ID]\n")
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "hash":
		err = runHash(os.Args[2:])
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "rebuild":
		err = runRebuild(ctx, os.Args[2:])
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Error("Команда завершилась ошибкой")
		os.Exit(1)
	}
}

func runHash(args []string) error {
	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	password := fs.StringP("password", "p", "", "пароль (или первым аргументом)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" && fs.NArg() > 0 {
		*password = fs.Arg(0)
	}
	if *password == "" {
		printUsage()
		return fmt.Errorf("пароль не указан")
	}

	hash, err := admin.HashPassword(*password)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Хеш пароля (добавьте в .env как ADMIN_PASSWORD_HASH):")
	fmt.Println(hash)
	return nil
}

func runToken(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	discordID := fs.String("discord-id", "", "Discord ID участника")
	username := fs.String("username", "", "имя участника")
	rawRole := fs.String("role", string(auth.RoleFullAccess), "роль: NONE, FULL_ACCESS, NAD, OG, MON")
	makeAdmin := fs.Bool("admin", false, "выдать права администратора")
	ttl := fs.Duration("ttl", 0, "срок жизни токена (по умолчанию JWT_TTL_HOURS)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *discordID == "" {
		printUsage()
		return fmt.Errorf("--discord-id обязателен")
	}
	role, err := auth.ParseRole(*rawRole)
	if err != nil {
		return err
	}

	cfg, application, err := boot(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	name := *username
	if name == "" {
		name = "discord:" + *discordID
	}
	u, err := application.Members.EnsureUser(ctx, members.UpsertInput{
		DiscordID: *discordID,
		Username:  name,
		Role:      role,
	})
	if err != nil {
		return err
	}
	if *makeAdmin {
		if err := application.Members.GrantAdmin(ctx, u.ID); err != nil {
			return err
		}
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.JWTTTLHours) * time.Hour
	}
	token, expireAt, err := auth.GenerateToken(cfg.JWTSecret, u.ID, *discordID, lifetime)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id":   u.ID,
		"role":      u.Role,
		"admin":     *makeAdmin || u.IsAdmin,
		"expire_at": expireAt.Format(time.RFC3339),
	}).Info("Токен выпущен")
	fmt.Println(token)
	return nil
}

func runRebuild(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("rebuild", pflag.ContinueOnError)
	projectID := fs.String("project", "", "ID проекта (по умолчанию все)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, application, err := boot(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if *projectID != "" {
		drifted, err := application.Voting.Rebuild(ctx, *projectID)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"project_id": *projectID, "drifted": drifted}).Info("Агрегаты проекта пересчитаны")
	} else {
		drifted, err := application.Voting.RebuildAll(ctx)
		if err != nil {
			return err
		}
		log.WithField("drifted", drifted).Info("Агрегаты всех проектов пересчитаны")
	}

	// дождаться уведомлений об алертах, если пересчёт их создал
	waitCtx, stop := context.WithTimeout(ctx, 30*time.Second)
	defer stop()
	return application.Publisher.Wait(waitCtx)
}

func boot(ctx context.Context) (*config.Config, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, application, nil
}
