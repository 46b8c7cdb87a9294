package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic вызывается через defer в обработчиках апдейтов бота
// и фоновых горутинах.
func RecoverFromPanic() {
	if r := recover(); r != nil {
		logPanic(r)
	}
}

// Recoverer: HTTP-мидлварь, паника логируется со стеком, клиенту уходит 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logPanic(rec)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"code":50001,"message":"внутренняя ошибка сервера","data":null}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logPanic(r interface{}) {
	log.WithFields(log.Fields{
		"component": "panic_recovery",
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	}).Error("ПАНИКА в обработчике — восстановлено")
}
