package receipt

import (
	"net/http"
	"net/http/httptest"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// bearerToken signs an HS256 token carrying the given claims.
func bearerToken(secret string, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	Expect(err).NotTo(HaveOccurred())
	return token
}

func authedRequest(token string) *http.Request {
	r := httptest.NewRequest("GET", "/api/receipts", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

var _ = Describe("Authenticator", func() {
	When("a secret is configured", func() {
		var auth *Authenticator

		BeforeEach(func() {
			auth = NewAuthenticator([]byte("auth-secret"))
		})

		It("should return the subject of a valid token", func() {
			userID, err := auth.UserID(authedRequest(bearerToken("auth-secret", jwt.MapClaims{"sub": "user-1"})))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("user-1"))
		})

		It("should reject a token signed with another secret", func() {
			_, err := auth.UserID(authedRequest(bearerToken("wrong-secret", jwt.MapClaims{"sub": "user-1"})))
			Expect(err).To(HaveOccurred())
		})

		It("should reject a request without a bearer token", func() {
			_, err := auth.UserID(httptest.NewRequest("GET", "/api/receipts", nil))
			Expect(err).To(MatchError(ContainSubstring("missing bearer token")))
		})
	})

	When("no secret is configured", func() {
		var auth *Authenticator

		BeforeEach(func() {
			auth = NewAuthenticator(nil)
		})

		It("should trust the token claims as-is", func() {
			userID, err := auth.UserID(authedRequest(bearerToken("whatever", jwt.MapClaims{"sub": "user-1"})))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("user-1"))
		})

		It("should fall back to user_id when sub is absent", func() {
			userID, err := auth.UserID(authedRequest(bearerToken("whatever", jwt.MapClaims{"user_id": "user-2"})))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("user-2"))
		})

		It("should fall back to uid last", func() {
			userID, err := auth.UserID(authedRequest(bearerToken("whatever", jwt.MapClaims{"uid": "user-3"})))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("user-3"))
		})

		It("should prefer sub over the other claims", func() {
			userID, err := auth.UserID(authedRequest(bearerToken("whatever", jwt.MapClaims{
				"sub":     "user-1",
				"user_id": "user-2",
			})))
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal("user-1"))
		})

		It("should reject a token with no user identifier", func() {
			_, err := auth.UserID(authedRequest(bearerToken("whatever", jwt.MapClaims{"role": "admin"})))
			Expect(err).To(MatchError(ContainSubstring("no user identifier")))
		})

		It("should reject a malformed token", func() {
			_, err := auth.UserID(authedRequest("not.a.jwt"))
			Expect(err).To(HaveOccurred())
		})
	})
})
