package services

import (
	"context"
	"crypto/md5"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	duplicateReviewWindow = time.Hour
	duplicateReviewLimit  = 3
	rapidReviewWindow     = 10 * time.Minute
	rapidReviewLimit      = 5
	reliabilityTTL        = 30 * 24 * time.Hour
	defaultReliability    = 50
	minReliability        = 20
)

// SpamDetector screens review submissions using Redis-backed heuristics.
// Two or more indicators mark a review as spam. Redis failures never flag.
type SpamDetector struct {
	redisClient redis.Cmdable
	logger      *logrus.Logger
	now         func() time.Time
}

func NewSpamDetector(redisClient redis.Cmdable, logger *logrus.Logger) *SpamDetector {
	return &SpamDetector{redisClient: redisClient, logger: logger, now: time.Now}
}

// IsSpam checks if a review is likely spam and adjusts the author's reliability.
func (sd *SpamDetector) IsSpam(ctx context.Context, userID, serviceID int64, text string) bool {
	indicators := 0
	var reasons []string
	for name, flagged := range map[string]bool{
		"duplicate_content":   sd.checkDuplicateContent(ctx, text),
		"rapid_submissions":   sd.checkRapidReviews(ctx, userID),
		"suspicious_patterns": checkSuspiciousPatterns(text),
		"low_reliability":     sd.checkUserReliability(ctx, userID),
	} {
		if flagged {
			indicators++
			reasons = append(reasons, name)
		}
	}

	spam := indicators >= 2
	delta := 1
	if spam {
		delta = -10
		sd.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"service_id": serviceID,
			"indicators": reasons,
		}).Warn("Review flagged as spam")
	}
	if err := sd.UpdateUserReliability(ctx, userID, delta); err != nil {
		sd.logger.WithError(err).Debug("Failed to update review reliability")
	}
	return spam
}

// checkDuplicateContent flags text posted more than a few times an hour, by anyone.
func (sd *SpamDetector) checkDuplicateContent(ctx context.Context, text string) bool {
	key := fmt.Sprintf("spam:content:%s", contentHash(text))

	count, err := sd.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return false
	}
	if count == 1 {
		sd.redisClient.Expire(ctx, key, duplicateReviewWindow)
	}
	return count > duplicateReviewLimit
}

func (sd *SpamDetector) checkRapidReviews(ctx context.Context, userID int64) bool {
	key := fmt.Sprintf("spam:rapid:%d", userID)
	now := sd.now()
	windowStart := now.Add(-rapidReviewWindow)

	count, err := sd.redisClient.ZCount(ctx, key,
		strconv.FormatInt(windowStart.UnixNano(), 10),
		strconv.FormatInt(now.UnixNano(), 10)).Result()
	if err != nil {
		return false
	}

	sd.redisClient.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	sd.redisClient.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	sd.redisClient.Expire(ctx, key, rapidReviewWindow)

	return count >= rapidReviewLimit
}

func (sd *SpamDetector) checkUserReliability(ctx context.Context, userID int64) bool {
	return sd.GetUserReliability(ctx, userID) < minReliability
}

// checkSuspiciousPatterns looks at the text alone: links, shouting and
// long runs of one character.
func checkSuspiciousPatterns(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") || strings.Contains(lower, "www.") {
		return true
	}

	letters, upper, run, maxRun := 0, 0, 0, 0
	var prev rune
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		maxRun = max(maxRun, run)
	}

	if letters >= 10 && float64(upper)/float64(letters) > 0.7 {
		return true
	}
	return maxRun >= 6
}

func contentHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	hash := md5.Sum([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// UpdateUserReliability moves a user's score by delta, clamped to 0..100.
func (sd *SpamDetector) UpdateUserReliability(ctx context.Context, userID int64, delta int) error {
	current := sd.GetUserReliability(ctx, userID)
	next := min(max(current+delta, 0), 100)

	key := fmt.Sprintf("spam:reliability:%d", userID)
	return sd.redisClient.Set(ctx, key, next, reliabilityTTL).Err()
}

// GetUserReliability returns 0..100, higher is better; unknown users are neutral.
func (sd *SpamDetector) GetUserReliability(ctx context.Context, userID int64) int {
	key := fmt.Sprintf("spam:reliability:%d", userID)

	reliabilityStr, err := sd.redisClient.Get(ctx, key).Result()
	if err != nil {
		return defaultReliability
	}

	reliability, err := strconv.Atoi(reliabilityStr)
	if err != nil {
		return defaultReliability
	}
	return reliability
}
