package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/config"
	"github.com/lcpu-club/ailabber/internal/metrics"
)

// pushStaging runs `rsync -avz -e "ssh ..." <stagingDir>/ <user>@<host>:<remoteBase>/<username>/`
// as an argument vector — the ssh `-e` option is itself passed as one
// structured argument, never built by concatenating untrusted paths into a
// shell string.
func pushStaging(ctx context.Context, ssh config.SSH, stagingDir, username string, timeout time.Duration) error {
	sshCmd := fmt.Sprintf("ssh -i %s -p %s -o StrictHostKeyChecking=no", ssh.PrivateKeyPath, strconv.Itoa(ssh.Port))
	dest := fmt.Sprintf("%s@%s:%s/%s/", ssh.User, ssh.Host, ssh.RemoteBaseDir, username)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, "rsync", "-avz", "-e", sshCmd, stagingDir+"/", dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.RsyncDuration.WithLabelValues("push").Observe(time.Since(start).Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		return apperr.New(apperr.KindSubmission, fmt.Sprintf("rsync push timed out after %s", timeout))
	}
	if err != nil {
		return apperr.Wrap(apperr.KindSubmission, "rsync push failed: "+stderr.String(), err)
	}
	return nil
}
