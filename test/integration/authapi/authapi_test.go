// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

//go:build integration

package authapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/passgate/passgate/internal/auth"
)

type response struct {
	status int
	body   map[string]any
}

func call(method, path, body string, headers map[string]string) response {
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, bytes.NewBufferString(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func withBearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

var _ = Describe("Auth API against PostgreSQL", func() {
	BeforeEach(func() {
		cleanupUsers(env.ctx, env.pool)
	})

	Describe("register, login and reset", func() {
		It("completes the account lifecycle", func() {
			By("registering")
			reg := call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada Lovelace","username":"ada","password":"secret123"}`, nil)
			Expect(reg.status).To(Equal(http.StatusCreated))
			Expect(reg.body).To(HaveKeyWithValue("message", "User registered successfully"))

			data := reg.body["data"].(map[string]any)
			Expect(data).NotTo(HaveKey("passwordHash"))
			token := reg.body["tokenDetails"].(map[string]any)["token"].(string)

			claims, err := env.tokens.Verify(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Subject).To(Equal(data["id"]))

			By("logging in with the issued token")
			login := call(http.MethodPost, "/api/auth/login",
				`{"username":"ada","password":"secret123"}`, withBearer(token))
			Expect(login.status).To(Equal(http.StatusOK))
			Expect(login.body["data"].(map[string]any)["id"]).To(Equal(data["id"]))

			By("resetting the password")
			reset := call(http.MethodPatch, "/api/auth/reset-password",
				`{"username":"ada","newPassword":"newsecret123"}`, map[string]string{"x-api-key": resetKey})
			Expect(reset.status).To(Equal(http.StatusOK))
			Expect(reset.body).To(Equal(map[string]any{"message": "Password reset successfully"}))

			By("rejecting the old password")
			old := call(http.MethodPost, "/api/auth/login",
				`{"username":"ada","password":"secret123"}`, withBearer(token))
			Expect(old.status).To(Equal(http.StatusBadRequest))
			Expect(old.body).To(HaveKeyWithValue("message", auth.MsgInvalidCredentials))

			By("accepting the new password")
			fresh := call(http.MethodPost, "/api/auth/login",
				`{"username":"ada","password":"newsecret123"}`, withBearer(token))
			Expect(fresh.status).To(Equal(http.StatusOK))
		})
	})

	Describe("uniqueness", func() {
		It("rejects a second registration of the same username", func() {
			first := call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada","username":"ada","password":"secret123"}`, nil)
			Expect(first.status).To(Equal(http.StatusCreated))

			second := call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Other Ada","username":"ada","password":"secret456"}`, nil)
			Expect(second.status).To(Equal(http.StatusBadRequest))
			Expect(second.body).To(HaveKeyWithValue("message", auth.MsgAlreadyExists))
		})

		It("lets exactly one of many concurrent registrations win", func() {
			const n = 12
			statuses := make([]int, n)
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					statuses[i] = call(http.MethodPost, "/api/auth/register",
						`{"fullName":"Racer","username":"racer","password":"secret123"}`, nil).status
				}(i)
			}
			wg.Wait()

			Expect(statuses).To(ContainElement(http.StatusCreated))
			created := 0
			for _, s := range statuses {
				if s == http.StatusCreated {
					created++
				} else {
					Expect(s).To(Equal(http.StatusBadRequest))
				}
			}
			Expect(created).To(Equal(1))

			var count int
			Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM users WHERE username = 'racer'").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})

		It("treats usernames as case-sensitive", func() {
			Expect(call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada","username":"ada","password":"secret123"}`, nil).status).To(Equal(http.StatusCreated))
			Expect(call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada","username":"Ada","password":"secret123"}`, nil).status).To(Equal(http.StatusCreated))
		})
	})

	Describe("reset key", func() {
		It("leaves the stored hash unchanged when the key is wrong", func() {
			Expect(call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada","username":"ada","password":"secret123"}`, nil).status).To(Equal(http.StatusCreated))
			before, err := env.users.GetByUsername(env.ctx, "ada")
			Expect(err).NotTo(HaveOccurred())

			reset := call(http.MethodPatch, "/api/auth/reset-password",
				`{"username":"ada","newPassword":"newsecret123"}`, map[string]string{"x-api-key": "wrong"})
			Expect(reset.status).To(Equal(http.StatusBadRequest))
			Expect(reset.body).To(HaveKeyWithValue("message", auth.MsgInvalidResetKey))

			after, err := env.users.GetByUsername(env.ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(after.PasswordHash).To(Equal(before.PasswordHash))
			Expect(after.UpdatedAt).To(Equal(before.UpdatedAt))
		})
	})

	Describe("login token gate", func() {
		It("refuses a valid token issued to a different user", func() {
			Expect(call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Ada","username":"ada","password":"secret123"}`, nil).status).To(Equal(http.StatusCreated))
			grace := call(http.MethodPost, "/api/auth/register",
				`{"fullName":"Grace","username":"grace","password":"cobol1959"}`, nil)
			graceToken := grace.body["tokenDetails"].(map[string]any)["token"].(string)

			login := call(http.MethodPost, "/api/auth/login",
				`{"username":"ada","password":"secret123"}`, withBearer(graceToken))
			Expect(login.status).To(Equal(http.StatusForbidden))
			Expect(login.body).To(HaveKeyWithValue("message", auth.MsgForbidden))
		})
	})

	Describe("readiness", func() {
		It("passes while the database is reachable", func() {
			Expect(env.readiness()(env.ctx)).To(Succeed())
		})
	})
})
