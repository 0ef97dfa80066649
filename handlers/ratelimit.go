package handlers

import (
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 每个IP的限流器及最近访问时间
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors   = make(map[string]*visitor)
	visitorsMu sync.Mutex

	rateLimitEnabled bool
)

const (
	// 每秒允许的请求数与突发额度
	requestsPerSecond = 10
	burstSize         = 20
	// 清理超过该时长未访问的IP记录
	visitorTTL = 3 * time.Minute
)

// InitRateLimiters reads ENABLE_RATE_LIMIT and starts the visitor cleanup
// loop when limiting is on.
func InitRateLimiters() {
	rateLimitEnabled = os.Getenv("ENABLE_RATE_LIMIT") == "true"
	if !rateLimitEnabled {
		log.Println("限流未启用")
		return
	}

	log.Printf("限流已启用: %d req/s, 突发 %d", requestsPerSecond, burstSize)
	go cleanupVisitors()
}

// getVisitor 获取或创建IP对应的限流器
func getVisitor(ip string) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(requestsPerSecond, burstSize)}
		visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors 定期清理长时间未访问的IP记录
func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		visitorsMu.Lock()
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > visitorTTL {
				delete(visitors, ip)
			}
		}
		visitorsMu.Unlock()
	}
}

// RateLimitMiddleware rejects requests over the per-IP budget with 429.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rateLimitEnabled {
			c.Next()
			return
		}

		limiter := getVisitor(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please slow down",
			})
			return
		}
		c.Next()
	}
}
