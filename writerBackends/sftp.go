package writerbackends

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"docrelay/logger"
	"docrelay/utils"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sshAuth picks key or password auth. privateKey may be base64 or raw PEM.
func sshAuth(accessInfo map[string]string) ([]ssh.AuthMethod, error) {
	if privateKey := accessInfo["privateKey"]; privateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			keyBytes = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if password := accessInfo["password"]; password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	return nil, fmt.Errorf("no auth method provided; set password or privateKey in accessInfo")
}

// hostKeyCallback pins the server key when hostKey (authorized_keys format)
// is given.
func hostKeyCallback(accessInfo map[string]string) (ssh.HostKeyCallback, error) {
	hostKey := accessInfo["hostKey"]
	if hostKey == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return ssh.FixedHostKey(pub), nil
}

// UploadToSFTPWithCreds uploads data into a remote directory that a web
// server publishes, and returns publicUrl/name.
// accessInfo: host, port (default 22), user, password or privateKey,
// hostKey (optional), remoteDir, publicUrl.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, name string, data []byte) (string, error) {
	host := accessInfo["host"]
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	user := accessInfo["user"]
	remoteDir := accessInfo["remoteDir"]
	publicURL := strings.TrimRight(accessInfo["publicUrl"], "/")

	if host == "" || user == "" || remoteDir == "" || publicURL == "" {
		return "", fmt.Errorf("missing required accessInfo keys: host, user, remoteDir, publicUrl")
	}

	auths, err := sshAuth(accessInfo)
	if err != nil {
		return "", err
	}
	hostKeys, err := hostKeyCallback(accessInfo)
	if err != nil {
		return "", err
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(host, port)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := mkdirAllSFTP(sftpClient, remoteDir); err != nil {
		return "", fmt.Errorf("ensure remote dir %s: %w", remoteDir, err)
	}

	suffix, err := utils.GenerateRandomHex(6)
	if err != nil {
		return "", err
	}
	remotePath := path.Join(remoteDir, name)
	tmpPath := path.Join(remoteDir, "."+name+".part-"+suffix)

	if err := writeRemote(sftpClient, tmpPath, data); err != nil {
		sftpClient.Remove(tmpPath)
		return "", err
	}
	if err := sftpClient.PosixRename(tmpPath, remotePath); err != nil {
		sftpClient.Remove(tmpPath)
		return "", fmt.Errorf("rename %s to %s: %w", tmpPath, remotePath, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remotePath, addr)
	return publicURL + "/" + url.PathEscape(name), nil
}

func writeRemote(client *sftp.Client, remotePath string, data []byte) error {
	f, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close remote file %s: %w", remotePath, err)
	}
	return nil
}

// mkdirAllSFTP mimics os.MkdirAll over SFTP, one path segment at a time.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
